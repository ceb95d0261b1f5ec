package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/vanhungne/tutoring-live/internal/core"
	"github.com/vanhungne/tutoring-live/internal/domain"
)

type fakeSignaler struct {
	invocations []string
	offers      []string
	answers     []string
	candidates  []string
	failWith    error
}

func (f *fakeSignaler) InitiateVideoCall(roomID domain.RoomID) error {
	f.invocations = append(f.invocations, "initiate:"+string(roomID))
	return f.failWith
}

func (f *fakeSignaler) AcceptCall(roomID domain.RoomID, caller string) error {
	f.invocations = append(f.invocations, "accept:"+caller)
	return f.failWith
}

func (f *fakeSignaler) RejectCall(roomID domain.RoomID, caller string) error {
	f.invocations = append(f.invocations, "reject:"+caller)
	return f.failWith
}

func (f *fakeSignaler) EndCall(roomID domain.RoomID) error {
	f.invocations = append(f.invocations, "end:"+string(roomID))
	return f.failWith
}

func (f *fakeSignaler) SendOffer(roomID domain.RoomID, offer string) error {
	f.offers = append(f.offers, offer)
	return f.failWith
}

func (f *fakeSignaler) SendAnswer(roomID domain.RoomID, answer string) error {
	f.answers = append(f.answers, answer)
	return f.failWith
}

func (f *fakeSignaler) SendIceCandidate(roomID domain.RoomID, candidate string) error {
	f.candidates = append(f.candidates, candidate)
	return f.failWith
}

type fakeLocalMedia struct {
	closed bool
}

func (f *fakeLocalMedia) Tracks() []webrtc.TrackLocal { return nil }
func (f *fakeLocalMedia) Close()                      { f.closed = true }

type fakeMediaSource struct {
	media *fakeLocalMedia
	err   error
}

func (f *fakeMediaSource) Acquire(context.Context) (core.LocalMedia, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.media = &fakeLocalMedia{}
	return f.media, nil
}

type fakeLink struct {
	remoteSet  bool
	localDescs []webrtc.SessionDescription
	added      []webrtc.ICECandidateInit
	attached   core.LocalMedia
	closed     bool

	onCandidate func(webrtc.ICECandidateInit)
	onTrack     func(core.RemoteMedia)
	onLost      func()
}

func (f *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (f *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (f *fakeLink) SetLocalDescription(sd webrtc.SessionDescription) error {
	f.localDescs = append(f.localDescs, sd)
	return nil
}

func (f *fakeLink) SetRemoteDescription(webrtc.SessionDescription) error {
	f.remoteSet = true
	return nil
}

func (f *fakeLink) HasRemoteDescription() bool { return f.remoteSet }

func (f *fakeLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.added = append(f.added, ci)
	return nil
}

func (f *fakeLink) AttachLocal(media core.LocalMedia) error {
	f.attached = media
	return nil
}

func (f *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onCandidate = fn }
func (f *fakeLink) OnRemoteTrack(fn func(core.RemoteMedia))        { f.onTrack = fn }
func (f *fakeLink) OnConnectionLost(fn func())                     { f.onLost = fn }
func (f *fakeLink) Close()                                         { f.closed = true }

type fakeFactory struct {
	link *fakeLink
	err  error
}

func (f *fakeFactory) NewPeerLink() (core.PeerLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.link = &fakeLink{}
	return f.link, nil
}

type stateChange struct {
	state domain.CallState
	info  *domain.CallInfo
}

type fakeStore struct {
	changes []stateChange
}

func (f *fakeStore) PublishMessage(domain.ChatMessage)         {}
func (f *fakeStore) SetRoomUnread(domain.RoomID, bool)         {}
func (f *fakeStore) SetLastSeen(domain.RoomID, string, time.Time) {}

func (f *fakeStore) SetCallState(state domain.CallState, info *domain.CallInfo) {
	f.changes = append(f.changes, stateChange{state: state, info: info})
}

func newTestMachine() (*Machine, *fakeSignaler, *fakeFactory, *fakeMediaSource, *fakeStore) {
	sig := &fakeSignaler{}
	factory := &fakeFactory{}
	media := &fakeMediaSource{}
	store := &fakeStore{}
	return NewMachine(sig, factory, media, store), sig, factory, media, store
}

func offerPayload(t *testing.T) string {
	t.Helper()
	s, err := marshalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote offer"})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func answerPayload(t *testing.T) string {
	t.Helper()
	s, err := marshalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 remote answer"})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func candidatePayload(t *testing.T, tag string) string {
	t.Helper()
	s, err := marshalCandidate(webrtc.ICECandidateInit{Candidate: "candidate:" + tag})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCallerHappyPath(t *testing.T) {
	m, sig, factory, media, _ := newTestMachine()

	if err := m.Initiate(context.Background(), "room-1"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if got := m.State(); got != domain.CallOutgoing {
		t.Fatalf("state = %v, want outgoing", got)
	}
	if len(sig.invocations) != 1 || sig.invocations[0] != "initiate:room-1" {
		t.Fatalf("invocations = %v", sig.invocations)
	}

	m.HandleCallAccepted("room-1", "bob")
	if got := m.State(); got != domain.CallNegotiating {
		t.Fatalf("state = %v, want negotiating", got)
	}
	if len(sig.offers) != 1 {
		t.Fatalf("offers sent = %d, want 1", len(sig.offers))
	}
	if factory.link.attached != media.media {
		t.Fatal("local media not attached to peer link")
	}

	m.HandleAnswer(answerPayload(t))
	if !factory.link.remoteSet {
		t.Fatal("remote description not set")
	}

	factory.link.onTrack(core.RemoteMedia{Kind: "video"})
	if got := m.State(); got != domain.CallConnected {
		t.Fatalf("state = %v, want connected", got)
	}

	if err := m.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := m.State(); got != domain.CallIdle {
		t.Fatalf("state after end = %v, want idle", got)
	}
	if !media.media.closed {
		t.Fatal("local media not released")
	}
	if !factory.link.closed {
		t.Fatal("peer link not closed")
	}
}

func TestCalleeAnswersOffer(t *testing.T) {
	m, sig, factory, _, _ := newTestMachine()

	m.HandleIncomingCall("room-2", "alice")
	if got := m.State(); got != domain.CallIncoming {
		t.Fatalf("state = %v, want incoming", got)
	}

	if err := m.Accept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(sig.invocations) != 1 || sig.invocations[0] != "accept:alice" {
		t.Fatalf("invocations = %v", sig.invocations)
	}

	m.HandleOffer(offerPayload(t))
	if !factory.link.remoteSet {
		t.Fatal("remote offer not applied")
	}
	if len(sig.answers) != 1 {
		t.Fatalf("answers sent = %d, want 1", len(sig.answers))
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	m, _, factory, _, _ := newTestMachine()

	m.HandleIncomingCall("room-3", "alice")
	if err := m.Accept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	m.HandleIceCandidate(candidatePayload(t, "early-1"))
	m.HandleIceCandidate(candidatePayload(t, "early-2"))
	if len(factory.link.added) != 0 {
		t.Fatalf("candidates applied before remote description: %v", factory.link.added)
	}

	m.HandleOffer(offerPayload(t))
	if len(factory.link.added) != 2 {
		t.Fatalf("buffered candidates applied = %d, want 2", len(factory.link.added))
	}
	if factory.link.added[0].Candidate != "candidate:early-1" || factory.link.added[1].Candidate != "candidate:early-2" {
		t.Fatalf("candidates out of order: %v", factory.link.added)
	}

	m.HandleIceCandidate(candidatePayload(t, "late"))
	if len(factory.link.added) != 3 || factory.link.added[2].Candidate != "candidate:late" {
		t.Fatalf("late candidate not applied directly: %v", factory.link.added)
	}
}

func TestSecondSessionRefused(t *testing.T) {
	m, sig, _, _, _ := newTestMachine()

	m.HandleIncomingCall("room-4", "alice")
	if err := m.Initiate(context.Background(), "room-5"); !errors.Is(err, ErrCallActive) {
		t.Fatalf("initiate during incoming = %v, want ErrCallActive", err)
	}
	if got := m.State(); got != domain.CallIncoming {
		t.Fatalf("state disturbed by refused initiate: %v", got)
	}

	m.HandleIncomingCall("room-6", "mallory")
	if got := m.State(); got != domain.CallIncoming {
		t.Fatalf("state = %v", got)
	}
	if len(sig.invocations) != 0 {
		t.Fatalf("refused sessions must not signal, got %v", sig.invocations)
	}
}

func TestInitiateMediaDenied(t *testing.T) {
	m, sig, _, media, store := newTestMachine()
	media.err = errors.New("permission denied")

	err := m.Initiate(context.Background(), "room-7")
	if !errors.Is(err, ErrMediaAcquisition) {
		t.Fatalf("err = %v, want ErrMediaAcquisition", err)
	}
	if got := m.State(); got != domain.CallIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if len(sig.invocations) != 0 {
		t.Fatalf("no invocation expected, got %v", sig.invocations)
	}
	if len(store.changes) != 0 {
		t.Fatalf("no session state expected, got %v", store.changes)
	}
}

func TestRejectIncoming(t *testing.T) {
	m, sig, _, _, store := newTestMachine()

	m.HandleIncomingCall("room-8", "alice")
	if err := m.Reject(); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if len(sig.invocations) != 1 || sig.invocations[0] != "reject:alice" {
		t.Fatalf("invocations = %v", sig.invocations)
	}
	if got := m.State(); got != domain.CallIdle {
		t.Fatalf("state = %v, want idle", got)
	}

	last := store.changes[len(store.changes)-1]
	if last.state != domain.CallIdle {
		t.Fatalf("final published state = %v, want idle", last.state)
	}
	terminal := store.changes[len(store.changes)-2]
	if terminal.state != domain.CallRejected || terminal.info == nil || terminal.info.Reason != ReasonRejected {
		t.Fatalf("terminal publish = %+v", terminal)
	}
}

func TestRemoteHangupReleasesEverything(t *testing.T) {
	m, _, factory, media, _ := newTestMachine()

	m.HandleIncomingCall("room-9", "alice")
	if err := m.Accept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	m.HandleCallEnded()
	if got := m.State(); got != domain.CallIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if !media.media.closed {
		t.Fatal("local media not released")
	}
	if !factory.link.closed {
		t.Fatal("peer link not closed")
	}
}

func TestConnectionLostFailsCall(t *testing.T) {
	m, _, factory, _, store := newTestMachine()

	m.HandleIncomingCall("room-10", "alice")
	if err := m.Accept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	m.HandleOffer(offerPayload(t))

	factory.link.onLost()
	if got := m.State(); got != domain.CallIdle {
		t.Fatalf("state = %v, want idle", got)
	}

	var sawFailed bool
	for _, ch := range store.changes {
		if ch.state == domain.CallFailed && ch.info != nil && ch.info.Reason == ReasonLost {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("failed state never published: %v", store.changes)
	}
}

func TestStrayEventsIgnoredWhenIdle(t *testing.T) {
	m, sig, _, _, store := newTestMachine()

	m.HandleOffer(offerPayload(t))
	m.HandleAnswer(answerPayload(t))
	m.HandleIceCandidate(candidatePayload(t, "ghost"))
	m.HandleCallEnded()
	m.HandleCallRejected()

	if got := m.State(); got != domain.CallIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if len(sig.invocations)+len(sig.offers)+len(sig.answers)+len(sig.candidates) != 0 {
		t.Fatal("stray events must not signal")
	}
	if len(store.changes) != 0 {
		t.Fatalf("stray events must not publish state, got %v", store.changes)
	}
}
