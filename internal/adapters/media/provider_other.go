//go:build !linux || !cgo

package media

import (
	"context"
	"fmt"
	"runtime"

	"github.com/pion/mediadevices"

	"github.com/dkeye/Peercall/internal/core"
	"github.com/dkeye/Peercall/internal/domain"
)

// Provider on non-Linux platforms has no capture drivers wired; every
// acquisition fails with ErrDeviceUnavailable and the session never reaches
// negotiation, which is exactly the media-failure path of the state machine.
type Provider struct{}

func NewProvider() (*Provider, error) { return &Provider{}, nil }

func (p *Provider) Selector() *mediadevices.CodecSelector { return nil }

func (p *Provider) Acquire(_ context.Context, _ domain.CallKind) (core.MediaHandle, error) {
	return nil, fmt.Errorf("%w: no capture drivers on %s", core.ErrDeviceUnavailable, runtime.GOOS)
}
