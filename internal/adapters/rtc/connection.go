package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/core"
)

// Connection is one negotiation context around a pion PeerConnection.
type Connection struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	senders     []localSender
	onCandidate func(webrtc.ICECandidateInit)
	onTrack     func(*webrtc.TrackRemote)
	onState     func(webrtc.PeerConnectionState)

	closeOnce sync.Once
}

// localSender keeps the original track next to its RTPSender so a disabled
// kind can be restored after ReplaceTrack(nil).
type localSender struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
}

func newConnection(pc *webrtc.PeerConnection) *Connection {
	c := &Connection{pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onCandidate
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})

	return c
}

func (c *Connection) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *Connection) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) AttachLocalMedia(h core.MediaHandle) error {
	for _, track := range h.Tracks() {
		sender, err := c.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add local track: %w", err)
		}
		c.mu.Lock()
		c.senders = append(c.senders, localSender{sender: sender, track: track})
		c.mu.Unlock()
	}
	return nil
}

// SetAudioEnabled mutes or unmutes the outbound audio by detaching the track
// from its sender; the encoder stops pulling frames while detached.
func (c *Connection) SetAudioEnabled(enabled bool) error {
	return c.setKindEnabled(webrtc.RTPCodecTypeAudio, enabled)
}

func (c *Connection) SetVideoEnabled(enabled bool) error {
	return c.setKindEnabled(webrtc.RTPCodecTypeVideo, enabled)
}

func (c *Connection) setKindEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	c.mu.Lock()
	senders := make([]localSender, len(c.senders))
	copy(senders, c.senders)
	c.mu.Unlock()

	for _, ls := range senders {
		if ls.track.Kind() != kind {
			continue
		}
		var next webrtc.TrackLocal
		if enabled {
			next = ls.track
		}
		if err := ls.sender.ReplaceTrack(next); err != nil {
			return fmt.Errorf("replace %s track: %w", kind, err)
		}
	}
	return nil
}

func (c *Connection) CreateOffer(_ context.Context) (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer: %v", core.ErrNegotiationFailed, err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local description: %v", core.ErrNegotiationFailed, err)
	}
	return offer, nil
}

func (c *Connection) CreateAnswer(_ context.Context) (webrtc.SessionDescription, error) {
	if c.pc.RemoteDescription() == nil {
		return webrtc.SessionDescription{}, core.ErrInvalidState
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer: %v", core.ErrNegotiationFailed, err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local description: %v", core.ErrNegotiationFailed, err)
	}
	return answer, nil
}

func (c *Connection) SetRemoteDescription(_ context.Context, sdp webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("%w: set remote description: %v", core.ErrNegotiationFailed, err)
	}
	return nil
}

func (c *Connection) AddCandidate(ci webrtc.ICECandidateInit) error {
	if c.pc.RemoteDescription() == nil {
		return core.ErrInvalidState
	}
	if err := c.pc.AddICECandidate(ci); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Msg("closed")
		}
	})
}
