// Package core declares the seams between the session layer and its
// collaborators: credentials, the application-state store, local media
// and the peer connection. Adapters own the resources they hand out.
package core

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/vanhungne/tutoring-live/internal/domain"
)

// CredentialProvider supplies the bearer token the hub connection is
// bound to. Refresh re-reads the externally managed credential; it is
// consulted exactly once after an authorization failure.
type CredentialProvider interface {
	Token() (string, error)
	Refresh() (string, error)
}

// StateStore is the narrow write surface into application state. The
// session layer publishes into it and never reads UI-only fields back.
type StateStore interface {
	PublishMessage(msg domain.ChatMessage)
	SetRoomUnread(roomID domain.RoomID, hasUnread bool)
	SetLastSeen(roomID domain.RoomID, username string, at time.Time)
	SetCallState(state domain.CallState, info *domain.CallInfo)
}

// LocalMedia is the acquired camera+microphone capture. Exclusively
// owned by the active call session; Close on every terminal transition.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	Close()
}

// MediaSource acquires local media. Acquisition may prompt the user and
// is deferred until the call is actually being set up.
type MediaSource interface {
	Acquire(ctx context.Context) (LocalMedia, error)
}

// RemoteMedia describes an inbound remote track. Track is nil when the
// transport cannot surface the concrete pion type (tests, loopbacks).
type RemoteMedia struct {
	Kind     string
	StreamID string
	Track    *webrtc.TrackRemote
}

// PeerLink abstracts the underlying peer connection.
// Owned by the call session; Close on every terminal transition.
type PeerLink interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// HasRemoteDescription gates candidate application: buffered remote
	// candidates are applied only once this reports true.
	HasRemoteDescription() bool
	AddICECandidate(webrtc.ICECandidateInit) error
	AttachLocal(media LocalMedia) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnRemoteTrack(fn func(RemoteMedia))
	// OnConnectionLost fires when ICE reports disconnected or failed.
	OnConnectionLost(fn func())
	Close()
}

// PeerFactory builds a fresh PeerLink per call.
type PeerFactory interface {
	NewPeerLink() (PeerLink, error)
}
