// Package media captures the local camera and microphone for calls.
// Capture is only wired up on Linux (V4L2 + malgo through
// pion/mediadevices); other platforms report media as unavailable and
// the call layer surfaces that to the user.
package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/vanhungne/tutoring-live/internal/core"
)

var ErrNoCapture = errors.New("media capture is not available on this platform")

type Source struct{}

func NewSource() *Source { return &Source{} }

func (s *Source) Acquire(ctx context.Context) (core.LocalMedia, error) {
	return capture(ctx)
}

// localStream owns captured tracks until the call releases them.
type localStream struct {
	tracks []webrtc.TrackLocal
	stop   func()
}

func (l *localStream) Tracks() []webrtc.TrackLocal { return l.tracks }

func (l *localStream) Close() {
	if l.stop != nil {
		l.stop()
	}
}
