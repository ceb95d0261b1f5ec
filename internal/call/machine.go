// Package call drives the single active call session through its
// lifecycle: offer/answer/ICE exchange and teardown. The machine is the
// only owner of the local media handle and the peer link; both are
// released on every terminal transition, error paths included.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vanhungne/tutoring-live/internal/core"
	"github.com/vanhungne/tutoring-live/internal/domain"
)

var (
	ErrCallActive       = errors.New("a call session is already active")
	ErrNoIncomingCall   = errors.New("no incoming call to answer")
	ErrNoActiveCall     = errors.New("no active call")
	ErrMediaAcquisition = errors.New("could not access camera or microphone")
)

// Reasons surfaced with terminal states.
const (
	ReasonEnded    = "call ended"
	ReasonRejected = "call rejected"
	ReasonLost     = "connection lost"
	ReasonNoMedia  = "media unavailable"
)

// Signaler is the outbound half of the hub the machine drives.
// Satisfied by hub.Client.
type Signaler interface {
	InitiateVideoCall(roomID domain.RoomID) error
	AcceptCall(roomID domain.RoomID, callerUsername string) error
	RejectCall(roomID domain.RoomID, callerUsername string) error
	EndCall(roomID domain.RoomID) error
	SendOffer(roomID domain.RoomID, offer string) error
	SendAnswer(roomID domain.RoomID, answer string) error
	SendIceCandidate(roomID domain.RoomID, candidate string) error
}

// Machine is the call signaling state machine. At most one non-idle
// session exists per client; a second initiate or incoming-call event
// is refused outright and leaves the active session untouched.
type Machine struct {
	signaler Signaler
	peers    core.PeerFactory
	media    core.MediaSource
	store    core.StateStore

	mu           sync.Mutex
	state        domain.CallState
	role         domain.CallRole
	roomID       domain.RoomID
	peerIdentity string
	local        core.LocalMedia
	link         core.PeerLink
	pendingICE   []webrtc.ICECandidateInit

	onLocalMedia  func(core.LocalMedia)
	onRemoteMedia func(core.RemoteMedia)
}

func NewMachine(sig Signaler, peers core.PeerFactory, media core.MediaSource, store core.StateStore) *Machine {
	return &Machine{
		signaler: sig,
		peers:    peers,
		media:    media,
		store:    store,
		state:    domain.CallIdle,
	}
}

// OnLocalMedia registers the hook invoked when local capture is ready,
// so the UI can attach it to a video element.
func (m *Machine) OnLocalMedia(fn func(core.LocalMedia)) {
	m.mu.Lock()
	m.onLocalMedia = fn
	m.mu.Unlock()
}

func (m *Machine) OnRemoteMedia(fn func(core.RemoteMedia)) {
	m.mu.Lock()
	m.onRemoteMedia = fn
	m.mu.Unlock()
}

func (m *Machine) State() domain.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initiate starts an outgoing call in roomID. Media is acquired first:
// if the camera or microphone is unavailable no session is created and
// the machine stays Idle.
func (m *Machine) Initiate(ctx context.Context, roomID domain.RoomID) error {
	m.mu.Lock()
	if m.state != domain.CallIdle {
		m.mu.Unlock()
		return ErrCallActive
	}

	local, err := m.media.Acquire(ctx)
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Msg("media acquisition failed")
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}

	m.state = domain.CallOutgoing
	m.role = domain.RoleCaller
	m.roomID = roomID
	m.local = local
	hook := m.onLocalMedia
	m.mu.Unlock()

	if hook != nil {
		hook(local)
	}
	m.publishState(domain.CallOutgoing, "")

	if err := m.signaler.InitiateVideoCall(roomID); err != nil {
		log.Error().Err(err).Str("module", "call").Msg("initiate invocation failed")
		m.terminate(domain.CallFailed, ReasonLost)
		return err
	}
	log.Info().Str("module", "call").Str("room", string(roomID)).Msg("call initiated")
	return nil
}

// HandleIncomingCall creates an Incoming session. Local media is not
// acquired yet: permission prompts wait until the user answers.
func (m *Machine) HandleIncomingCall(roomID domain.RoomID, callerUsername string) {
	m.mu.Lock()
	if m.state != domain.CallIdle {
		m.mu.Unlock()
		log.Warn().Str("module", "call").Str("room", string(roomID)).Msg("incoming call refused, session active")
		return
	}
	m.state = domain.CallIncoming
	m.role = domain.RoleCallee
	m.roomID = roomID
	m.peerIdentity = callerUsername
	m.mu.Unlock()

	log.Info().Str("module", "call").Str("caller", callerUsername).Msg("incoming call")
	m.publishState(domain.CallIncoming, "")
}

// Accept answers the incoming call: acquires media, creates the peer
// link and notifies the caller. The offer comes from the caller after
// this; the accepting side never creates it.
func (m *Machine) Accept(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.CallIncoming {
		m.mu.Unlock()
		return ErrNoIncomingCall
	}
	roomID, caller := m.roomID, m.peerIdentity

	local, err := m.media.Acquire(ctx)
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Msg("media acquisition failed on accept")
		// Let the caller know rather than leaving them ringing.
		_ = m.signaler.RejectCall(roomID, caller)
		m.terminate(domain.CallFailed, ReasonNoMedia)
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}
	m.local = local

	link, err := m.newLinkLocked()
	if err != nil {
		m.mu.Unlock()
		m.terminate(domain.CallFailed, ReasonLost)
		return err
	}
	if err := link.AttachLocal(local); err != nil {
		m.mu.Unlock()
		m.terminate(domain.CallFailed, ReasonLost)
		return err
	}
	m.state = domain.CallNegotiating
	hook := m.onLocalMedia
	m.mu.Unlock()

	if hook != nil {
		hook(local)
	}
	m.publishState(domain.CallNegotiating, "")

	if err := m.signaler.AcceptCall(roomID, caller); err != nil {
		m.terminate(domain.CallFailed, ReasonLost)
		return err
	}
	log.Info().Str("module", "call").Str("caller", caller).Msg("call accepted")
	return nil
}

// HandleCallAccepted runs on the caller when the callee accepts: create
// the peer link, generate the offer, set it locally and transmit it.
func (m *Machine) HandleCallAccepted(roomID domain.RoomID, calleeUsername string) {
	m.mu.Lock()
	if m.state != domain.CallOutgoing || m.role != domain.RoleCaller {
		state := m.state
		m.mu.Unlock()
		log.Warn().Str("module", "call").Str("state", state.String()).Msg("unexpected call_accepted dropped")
		return
	}
	m.peerIdentity = calleeUsername

	link := m.link
	if link == nil {
		var err error
		link, err = m.newLinkLocked()
		if err != nil {
			m.mu.Unlock()
			m.terminate(domain.CallFailed, ReasonLost)
			return
		}
		if err := link.AttachLocal(m.local); err != nil {
			m.mu.Unlock()
			m.terminate(domain.CallFailed, ReasonLost)
			return
		}
	}

	offer, err := link.CreateOffer()
	if err == nil {
		err = link.SetLocalDescription(offer)
	}
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Msg("offer creation failed")
		m.terminate(domain.CallFailed, ReasonLost)
		return
	}
	m.state = domain.CallNegotiating
	m.mu.Unlock()

	m.publishState(domain.CallNegotiating, "")

	payload, err := marshalDescription(offer)
	if err == nil {
		err = m.signaler.SendOffer(roomID, payload)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "call").Msg("offer send failed")
		m.terminate(domain.CallFailed, ReasonLost)
	}
}

// HandleOffer runs on the callee: set the remote description, answer,
// and drain any candidates that raced ahead of the offer.
func (m *Machine) HandleOffer(offer string) {
	m.mu.Lock()
	if m.state != domain.CallNegotiating || m.role != domain.RoleCallee || m.link == nil {
		m.mu.Unlock()
		log.Warn().Str("module", "call").Msg("unexpected offer dropped")
		return
	}

	sd, err := unmarshalDescription(offer)
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Msg("malformed offer dropped")
		return
	}

	if err := m.link.SetRemoteDescription(sd); err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Msg("set remote offer failed")
		m.terminate(domain.CallFailed, ReasonLost)
		return
	}

	answer, err := m.link.CreateAnswer()
	if err == nil {
		err = m.link.SetLocalDescription(answer)
	}
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Msg("answer creation failed")
		m.terminate(domain.CallFailed, ReasonLost)
		return
	}

	m.flushPendingLocked()
	roomID := m.roomID
	m.mu.Unlock()

	payload, err := marshalDescription(answer)
	if err == nil {
		err = m.signaler.SendAnswer(roomID, payload)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "call").Msg("answer send failed")
		m.terminate(domain.CallFailed, ReasonLost)
	}
}

// HandleAnswer runs on the caller: set the remote description and drain
// queued candidates.
func (m *Machine) HandleAnswer(answer string) {
	m.mu.Lock()
	if m.state != domain.CallNegotiating || m.role != domain.RoleCaller || m.link == nil {
		m.mu.Unlock()
		log.Warn().Str("module", "call").Msg("unexpected answer dropped")
		return
	}

	sd, err := unmarshalDescription(answer)
	if err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Msg("malformed answer dropped")
		return
	}

	if err := m.link.SetRemoteDescription(sd); err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Str("module", "call").Msg("set remote answer failed")
		m.terminate(domain.CallFailed, ReasonLost)
		return
	}
	m.flushPendingLocked()
	m.mu.Unlock()
}

// HandleIceCandidate applies the candidate when a remote description is
// already set, and buffers it otherwise. Buffered candidates are applied
// in arrival order.
func (m *Machine) HandleIceCandidate(candidate string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.CallIdle || m.state.Terminal() {
		log.Debug().Str("module", "call").Msg("candidate outside call dropped")
		return
	}

	cand, err := unmarshalCandidate(candidate)
	if err != nil {
		log.Error().Err(err).Str("module", "call").Msg("malformed candidate dropped")
		return
	}

	if m.link != nil && m.link.HasRemoteDescription() {
		if err := m.link.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "call").Msg("add candidate failed")
		}
		return
	}
	m.pendingICE = append(m.pendingICE, cand)
}

// Reject declines the incoming call.
func (m *Machine) Reject() error {
	m.mu.Lock()
	if m.state != domain.CallIncoming {
		m.mu.Unlock()
		return ErrNoIncomingCall
	}
	roomID, caller := m.roomID, m.peerIdentity
	m.mu.Unlock()

	err := m.signaler.RejectCall(roomID, caller)
	m.terminate(domain.CallRejected, ReasonRejected)
	return err
}

// HandleCallRejected runs when the remote side declines.
func (m *Machine) HandleCallRejected() {
	m.mu.Lock()
	active := m.state != domain.CallIdle
	m.mu.Unlock()
	if !active {
		return
	}
	m.terminate(domain.CallRejected, ReasonRejected)
}

// End hangs up from any non-idle state.
func (m *Machine) End() error {
	m.mu.Lock()
	if m.state == domain.CallIdle {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	roomID := m.roomID
	m.mu.Unlock()

	err := m.signaler.EndCall(roomID)
	m.terminate(domain.CallEnded, ReasonEnded)
	return err
}

func (m *Machine) HandleCallEnded() {
	m.mu.Lock()
	active := m.state != domain.CallIdle
	m.mu.Unlock()
	if !active {
		return
	}
	m.terminate(domain.CallEnded, ReasonEnded)
}

// handleRemoteTrack observes the first inbound track: that is the
// Negotiating -> Connected edge, there is no explicit message for it.
func (m *Machine) handleRemoteTrack(rm core.RemoteMedia) {
	m.mu.Lock()
	hook := m.onRemoteMedia
	becameConnected := m.state == domain.CallNegotiating
	if becameConnected {
		m.state = domain.CallConnected
	}
	m.mu.Unlock()

	if hook != nil {
		hook(rm)
	}
	if becameConnected {
		log.Info().Str("module", "call").Str("kind", rm.Kind).Msg("remote media arrived, call connected")
		m.publishState(domain.CallConnected, "")
	}
}

func (m *Machine) handleConnectionLost() {
	m.mu.Lock()
	failing := m.state == domain.CallNegotiating || m.state == domain.CallConnected
	m.mu.Unlock()
	if !failing {
		return
	}
	log.Warn().Str("module", "call").Msg("peer connectivity lost")
	m.terminate(domain.CallFailed, ReasonLost)
}

// newLinkLocked builds the peer link and wires its callbacks. m.mu held.
func (m *Machine) newLinkLocked() (core.PeerLink, error) {
	link, err := m.peers.NewPeerLink()
	if err != nil {
		return nil, fmt.Errorf("new peer link: %w", err)
	}
	roomID := m.roomID
	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		payload, merr := marshalCandidate(ci)
		if merr != nil {
			log.Error().Err(merr).Str("module", "call").Msg("marshal candidate")
			return
		}
		if serr := m.signaler.SendIceCandidate(roomID, payload); serr != nil {
			log.Error().Err(serr).Str("module", "call").Msg("send candidate")
		}
	})
	link.OnRemoteTrack(m.handleRemoteTrack)
	link.OnConnectionLost(m.handleConnectionLost)
	m.link = link
	return link, nil
}

// flushPendingLocked applies buffered candidates in arrival order.
// m.mu held; callers guarantee the remote description is set.
func (m *Machine) flushPendingLocked() {
	for _, cand := range m.pendingICE {
		if err := m.link.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "call").Msg("flush candidate failed")
		}
	}
	m.pendingICE = nil
}

// terminate releases every handle, publishes the terminal state with
// its reason, and reverts to Idle. Idempotent once Idle.
func (m *Machine) terminate(terminal domain.CallState, reason string) {
	m.mu.Lock()
	if m.state == domain.CallIdle {
		m.mu.Unlock()
		return
	}
	local, link := m.local, m.link
	m.local = nil
	m.link = nil
	m.pendingICE = nil
	roomID, peer, role := m.roomID, m.peerIdentity, m.role
	m.state = domain.CallIdle
	m.role = domain.RoleNone
	m.roomID = ""
	m.peerIdentity = ""
	m.mu.Unlock()

	if local != nil {
		local.Close()
	}
	if link != nil {
		link.Close()
	}

	log.Info().Str("module", "call").Str("state", terminal.String()).Str("reason", reason).Msg("call terminated")
	m.store.SetCallState(terminal, &domain.CallInfo{
		RoomID:       roomID,
		PeerUsername: peer,
		Role:         role,
		Reason:       reason,
	})
	m.store.SetCallState(domain.CallIdle, nil)
}

func (m *Machine) publishState(state domain.CallState, reason string) {
	m.mu.Lock()
	info := &domain.CallInfo{
		RoomID:       m.roomID,
		PeerUsername: m.peerIdentity,
		Role:         m.role,
		Reason:       reason,
	}
	m.mu.Unlock()
	m.store.SetCallState(state, info)
}
