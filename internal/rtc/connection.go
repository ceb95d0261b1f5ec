// Package rtc adapts pion peer connections to the call layer.
package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vanhungne/tutoring-live/internal/core"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// ConfigFromSTUN builds a webrtc configuration from configured STUN
// URLs, falling back to the default when none are given.
func ConfigFromSTUN(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return DefaultWebRTCConfig()
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	}
}

// Factory creates peer links sharing one webrtc configuration. When an
// API is supplied its media engine decides the negotiated codecs, which
// matters for locally encoded capture tracks.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(cfg webrtc.Configuration) *Factory {
	return &Factory{cfg: cfg}
}

func NewFactoryWithAPI(api *webrtc.API, cfg webrtc.Configuration) *Factory {
	return &Factory{api: api, cfg: cfg}
}

func (f *Factory) NewPeerLink() (core.PeerLink, error) {
	return newPeerConnection(f.api, f.cfg)
}

// PeerConnection wraps a pion peer connection behind core.PeerLink.
type PeerConnection struct {
	pc *webrtc.PeerConnection

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteMedia)
	onLost  func()
}

func NewPeerConnection(cfg webrtc.Configuration) (*PeerConnection, error) {
	return newPeerConnection(nil, cfg)
}

func newPeerConnection(api *webrtc.API, cfg webrtc.Configuration) (*PeerConnection, error) {
	var pc *webrtc.PeerConnection
	var err error
	if api != nil {
		pc, err = api.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := &PeerConnection{pc: pc}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateDisconnected ||
			s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			if c.onLost != nil {
				c.onLost()
			}
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(core.RemoteMedia{
				Kind:     track.Kind().String(),
				StreamID: track.StreamID(),
				Track:    track,
			})
		}
	})

	return c, nil
}

func (c *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *PeerConnection) SetLocalDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sd)
}

func (c *PeerConnection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sd)
}

func (c *PeerConnection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *PeerConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *PeerConnection) AttachLocal(media core.LocalMedia) error {
	for _, track := range media.Tracks() {
		if _, err := c.pc.AddTrack(track); err != nil {
			return fmt.Errorf("add local track: %w", err)
		}
	}
	return nil
}

func (c *PeerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnRemoteTrack sets application-level callback for remote tracks.
func (c *PeerConnection) OnRemoteTrack(fn func(core.RemoteMedia)) { c.onTrack = fn }

// OnConnectionLost sets application-level callback for teardown.
func (c *PeerConnection) OnConnectionLost(fn func()) { c.onLost = fn }

func (c *PeerConnection) Close() {
	if c.pc == nil {
		return
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Msg("closed")
	}
}
