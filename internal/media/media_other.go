//go:build !linux || !cgo

package media

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// NewAPI builds a webrtc API with the default codecs. Capture needs
// platform drivers (V4L2/malgo on Linux), so calls from other
// platforms negotiate receive-only.
func NewAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

func capture(context.Context) (*localStream, error) {
	return nil, ErrNoCapture
}
