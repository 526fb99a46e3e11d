//go:build linux && cgo

package media

import (
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/domain"
)

// handle owns the captured tracks for one call session.
type handle struct {
	kind   domain.CallKind
	tracks []mediadevices.Track

	mu       sync.Mutex
	audioOn  bool
	videoOn  bool
	released bool
}

func newHandle(kind domain.CallKind, tracks []mediadevices.Track) *handle {
	return &handle{kind: kind, tracks: tracks, audioOn: true, videoOn: kind == domain.CallVideo}
}

func (h *handle) Kind() domain.CallKind { return h.kind }

func (h *handle) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(h.tracks))
	for _, t := range h.tracks {
		out = append(out, t)
	}
	return out
}

// mediadevices tracks have no pause control; the toggles are recorded here
// for the session snapshot, and the negotiation connection detaches the
// corresponding sender so nothing leaves the machine while disabled.
func (h *handle) SetAudioEnabled(enabled bool) {
	h.mu.Lock()
	h.audioOn = enabled
	h.mu.Unlock()
}

func (h *handle) SetVideoEnabled(enabled bool) {
	h.mu.Lock()
	h.videoOn = enabled
	h.mu.Unlock()
}

// Close releases the capture devices. Idempotent: the session manager calls
// it on every terminal path.
func (h *handle) Close() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	for _, t := range h.tracks {
		if err := t.Close(); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("track close")
		}
	}
	log.Info().Str("module", "media").Str("kind", string(h.kind)).Msg("local media released")
}
