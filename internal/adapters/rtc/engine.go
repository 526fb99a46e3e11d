// Package rtc wraps pion/webrtc as the negotiation engine for call sessions.
package rtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Peercall/internal/core"
)

// MediaEnginePopulator registers the codecs local capture produces.
// pion/mediadevices' CodecSelector satisfies this; when nil the default
// codec set is used.
type MediaEnginePopulator interface {
	Populate(*webrtc.MediaEngine)
}

type Engine struct {
	cfg webrtc.Configuration
	api *webrtc.API
}

func DefaultConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunURLs},
		},
	}
}

func NewEngine(cfg webrtc.Configuration, populator MediaEnginePopulator) (*Engine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if populator != nil {
		populator.Populate(mediaEngine)
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)
	return &Engine{cfg: cfg, api: api}, nil
}

func (e *Engine) NewConnection() (core.NegotiationConn, error) {
	pc, err := e.api.NewPeerConnection(e.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newConnection(pc), nil
}
