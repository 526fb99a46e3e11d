package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Peercall/internal/domain"
)

// MediaHandle owns captured local devices for exactly one call session.
// Close releases the devices and is idempotent; it is invoked on every
// terminal path of the session lifecycle.
type MediaHandle interface {
	Kind() domain.CallKind
	// Tracks returns the local tracks to attach to a peer connection.
	Tracks() []webrtc.TrackLocal
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	Close()
}

// MediaProvider acquires local capture devices: microphone always, camera
// additionally when kind is video. Acquisition failures map onto
// ErrPermissionDenied or ErrDeviceUnavailable.
type MediaProvider interface {
	Acquire(ctx context.Context, kind domain.CallKind) (MediaHandle, error)
}
