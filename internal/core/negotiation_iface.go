package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// NegotiationConn wraps one peer-to-peer negotiation context (descriptions,
// candidate exchange, connection state). One exists per call session and is
// destroyed together with it.
type NegotiationConn interface {
	// OnLocalCandidate sets a callback for newly gathered local ICE
	// candidates. Local candidates are sent to the peer immediately,
	// regardless of negotiation phase.
	OnLocalCandidate(func(webrtc.ICECandidateInit))
	// OnRemoteTrack sets a callback that will be invoked when a remote
	// media track arrives.
	OnRemoteTrack(func(*webrtc.TrackRemote))
	// OnStateChange sets a callback for peer connection state transitions.
	// A terminal state here is the sole trigger for autonomously ending a
	// session without explicit signaling.
	OnStateChange(func(webrtc.PeerConnectionState))

	AttachLocalMedia(h MediaHandle) error
	// SetAudioEnabled and SetVideoEnabled sever or restore the outbound
	// sender path for the attached tracks of that kind. Disabled means the
	// peer receives nothing, not a flagged-but-flowing stream.
	SetAudioEnabled(enabled bool) error
	SetVideoEnabled(enabled bool) error
	// CreateOffer generates the local offer and installs it as the local
	// description.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	// CreateAnswer generates the local answer and installs it as the local
	// description. The remote description must already be set.
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(ctx context.Context, sdp webrtc.SessionDescription) error
	// AddCandidate applies a remote candidate. Returns ErrInvalidState if
	// the remote description has not been set yet; callers buffer and retry
	// after the description is applied.
	AddCandidate(ci webrtc.ICECandidateInit) error
	// Close releases all negotiation resources. Safe to call multiple times.
	Close()
}

// NegotiationEngine creates negotiation contexts.
type NegotiationEngine interface {
	NewConnection() (NegotiationConn, error)
}
