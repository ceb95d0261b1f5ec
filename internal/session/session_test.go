package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/vanhungne/tutoring-live/internal/auth"
	"github.com/vanhungne/tutoring-live/internal/config"
	"github.com/vanhungne/tutoring-live/internal/core"
	"github.com/vanhungne/tutoring-live/internal/domain"
	"github.com/vanhungne/tutoring-live/internal/hubserver"
)

const testSecret = "session-test-secret"

type fakeMedia struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeMedia) Tracks() []webrtc.TrackLocal { return nil }

func (f *fakeMedia) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeMedia) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSource struct {
	mu   sync.Mutex
	last *fakeMedia
}

func (f *fakeSource) Acquire(context.Context) (core.LocalMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &fakeMedia{}
	return f.last, nil
}

type fakeLink struct {
	mu        sync.Mutex
	remoteSet bool
	closed    bool
	added     []webrtc.ICECandidateInit

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

func (f *fakeLink) SetLocalDescription(webrtc.SessionDescription) error { return nil }

func (f *fakeLink) SetRemoteDescription(webrtc.SessionDescription) error {
	f.mu.Lock()
	f.remoteSet = true
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) HasRemoteDescription() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteSet
}

func (f *fakeLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.mu.Lock()
	f.added = append(f.added, ci)
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) AttachLocal(core.LocalMedia) error { return nil }

func (f *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onCandidate = fn }

func (f *fakeLink) OnRemoteTrack(fn func(core.RemoteMedia)) {
	f.mu.Lock()
	f.onTrack = fn
	f.mu.Unlock()
}

func (f *fakeLink) OnConnectionLost(fn func()) { f.onLost = fn }

func (f *fakeLink) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeLink) emitTrack(rm core.RemoteMedia) {
	f.mu.Lock()
	fn := f.onTrack
	f.mu.Unlock()
	if fn != nil {
		fn(rm)
	}
}

func (f *fakeLink) candidateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

type fakeFactory struct {
	mu   sync.Mutex
	last *fakeLink
}

func (f *fakeFactory) NewPeerLink() (core.PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &fakeLink{}
	return f.last, nil
}

func (f *fakeFactory) link() *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func startSession(t *testing.T, url, username string) (*Session, *fakeFactory, *fakeSource) {
	t.Helper()
	token, err := auth.SignToken(username, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		HubURL:           url,
		ReconnectBase:    time.Millisecond,
		ReconnectCap:     5 * time.Millisecond,
		ReconnectMax:     2,
		HandshakeTimeout: 2 * time.Second,
	}
	factory := &fakeFactory{}
	source := &fakeSource{}
	sess := New(cfg, auth.StaticCredentials{AccessToken: token}, factory, source)
	t.Cleanup(sess.Stop)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start %s: %v", username, err)
	}
	return sess, factory, source
}

func startTestHub(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{Mode: "release", Secret: testSecret}
	srv := httptest.NewServer(hubserver.SetupRouter(ctx, cfg, hubserver.NewRegistry()))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/hub"
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCallAcrossTwoSessions(t *testing.T) {
	url := startTestHub(t)
	tutor, tutorPeers, _ := startSession(t, url, "tutor")
	student, studentPeers, studentSource := startSession(t, url, "student")

	const room = domain.RoomID("lesson-42")
	if err := tutor.Hub.JoinRoom(room); err != nil {
		t.Fatal(err)
	}
	if err := student.Hub.JoinRoom(room); err != nil {
		t.Fatal(err)
	}

	if err := tutor.Calls.Initiate(context.Background(), room); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	waitFor(t, "incoming call at student", func() bool {
		return student.Calls.State() == domain.CallIncoming
	})

	if err := student.Calls.Accept(context.Background()); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Accept travels to the tutor, who creates the offer; the student
	// answers it; both sides end up negotiating with descriptions set.
	waitFor(t, "tutor negotiating", func() bool {
		return tutor.Calls.State() == domain.CallNegotiating
	})
	waitFor(t, "student remote description", func() bool {
		link := studentPeers.link()
		return link != nil && link.HasRemoteDescription()
	})
	waitFor(t, "tutor remote description", func() bool {
		link := tutorPeers.link()
		return link != nil && link.HasRemoteDescription()
	})

	// Candidates relayed through the hub reach the other side's link.
	tutorLink := tutorPeers.link()
	tutorLink.onCandidate(webrtc.ICECandidateInit{Candidate: "candidate:tutor-1"})
	waitFor(t, "candidate at student", func() bool {
		return studentPeers.link().candidateCount() == 1
	})

	// First remote track marks the call connected.
	tutorLink.emitTrack(core.RemoteMedia{Kind: "video"})
	waitFor(t, "tutor connected", func() bool {
		return tutor.Calls.State() == domain.CallConnected
	})

	// Hangup propagates and both sides release their media.
	if err := tutor.Calls.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	waitFor(t, "student idle after hangup", func() bool {
		return student.Calls.State() == domain.CallIdle
	})
	waitFor(t, "student media released", func() bool {
		studentSource.mu.Lock()
		defer studentSource.mu.Unlock()
		return studentSource.last != nil && studentSource.last.isClosed()
	})

	state, _ := student.Store.CallState()
	if state != domain.CallIdle {
		t.Fatalf("student store call state = %v, want idle", state)
	}
}

func TestRejectPropagatesToCaller(t *testing.T) {
	url := startTestHub(t)
	tutor, _, tutorSource := startSession(t, url, "tutor")
	student, _, _ := startSession(t, url, "student")

	const room = domain.RoomID("lesson-43")
	if err := tutor.Hub.JoinRoom(room); err != nil {
		t.Fatal(err)
	}
	if err := student.Hub.JoinRoom(room); err != nil {
		t.Fatal(err)
	}

	if err := tutor.Calls.Initiate(context.Background(), room); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "incoming call at student", func() bool {
		return student.Calls.State() == domain.CallIncoming
	})

	if err := student.Calls.Reject(); err != nil {
		t.Fatalf("reject: %v", err)
	}
	waitFor(t, "tutor idle after reject", func() bool {
		return tutor.Calls.State() == domain.CallIdle
	})
	waitFor(t, "tutor media released", func() bool {
		tutorSource.mu.Lock()
		defer tutorSource.mu.Unlock()
		return tutorSource.last != nil && tutorSource.last.isClosed()
	})
}
