//go:build linux && cgo

// Package media acquires and releases local capture devices. On Linux the
// capture path is pion/mediadevices (V4L2 camera, malgo microphone); other
// platforms get a provider that reports devices as unavailable.
package media

import (
	"context"
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/core"
	"github.com/dkeye/Peercall/internal/domain"
)

type Provider struct {
	selector *mediadevices.CodecSelector
}

func NewProvider() (*Provider, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &Provider{selector: selector}, nil
}

// Selector exposes the codec selector so the negotiation engine can
// populate its media engine with the same codecs capture produces.
func (p *Provider) Selector() *mediadevices.CodecSelector { return p.selector }

// Acquire opens the microphone, and additionally the camera when kind is
// video. The returned handle exclusively owns the devices until Close.
func (p *Provider) Acquire(_ context.Context, kind domain.CallKind) (core.MediaHandle, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: p.selector}
	constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	if kind == domain.CallVideo {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Exclude MJPEG: some cameras expose an MJPEG V4L2 node whose
			// malformed frames poison the VP8 encoder. Raw formats only.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
	}

	log.Info().
		Str("module", "media").
		Str("kind", string(kind)).
		Int("tracks", len(stream.GetTracks())).
		Msg("local media captured")
	return newHandle(kind, stream.GetTracks()), nil
}
