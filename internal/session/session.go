// Package session composes the hub client, the call machine and the
// state store into the one object an application embeds.
package session

import (
	"context"

	"github.com/vanhungne/tutoring-live/internal/call"
	"github.com/vanhungne/tutoring-live/internal/config"
	"github.com/vanhungne/tutoring-live/internal/core"
	"github.com/vanhungne/tutoring-live/internal/domain"
	"github.com/vanhungne/tutoring-live/internal/hub"
	"github.com/vanhungne/tutoring-live/internal/store"
)

// Session is the realtime layer facade: chat over the hub plus calls
// signaled through the same connection.
type Session struct {
	Hub   *hub.Client
	Calls *call.Machine
	Store *store.Memory

	creds core.CredentialProvider
}

func New(cfg *config.Config, creds core.CredentialProvider, peers core.PeerFactory, media core.MediaSource) *Session {
	st := store.NewMemory()
	client := hub.NewClient(hub.OptionsFromConfig(cfg), creds, st)
	machine := call.NewMachine(client, peers, media, st)
	client.BindCallEvents(&callBridge{machine: machine})
	return &Session{Hub: client, Calls: machine, Store: st, creds: creds}
}

// Start connects to the hub with the provider's current token.
func (s *Session) Start(ctx context.Context) error {
	token, err := s.creds.Token()
	if err != nil {
		return err
	}
	return s.Hub.Start(ctx, token)
}

// Stop hangs up any active call, then tears down the connection.
func (s *Session) Stop() {
	if s.Calls.State() != domain.CallIdle {
		_ = s.Calls.End()
	}
	s.Hub.Stop()
}

// callBridge adapts hub envelopes to the machine's event methods.
type callBridge struct {
	machine *call.Machine
}

func (b *callBridge) HandleIncomingCall(ev hub.CallEvent) {
	b.machine.HandleIncomingCall(ev.RoomID, ev.Username)
}

func (b *callBridge) HandleCallAccepted(ev hub.CallEvent) {
	b.machine.HandleCallAccepted(ev.RoomID, ev.Username)
}

func (b *callBridge) HandleCallRejected(hub.CallEvent) {
	b.machine.HandleCallRejected()
}

func (b *callBridge) HandleCallEnded(hub.CallEvent) {
	b.machine.HandleCallEnded()
}

func (b *callBridge) HandleOffer(sig hub.SignalPayload) {
	b.machine.HandleOffer(sig.Offer)
}

func (b *callBridge) HandleAnswer(sig hub.SignalPayload) {
	b.machine.HandleAnswer(sig.Answer)
}

func (b *callBridge) HandleIceCandidate(sig hub.SignalPayload) {
	b.machine.HandleIceCandidate(sig.IceCandidate)
}
