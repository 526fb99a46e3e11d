package app

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Peercall/internal/core"
	"github.com/dkeye/Peercall/internal/domain"
)

// session is the single call a local user may be in. It exists from a local
// start-call or an inbound offer until a terminal transition, and owns the
// media handle and negotiation context for exactly that long.
type session struct {
	id         string
	remote     domain.UserID
	remoteName string
	kind       domain.CallKind
	direction  domain.CallDirection
	state      domain.CallState

	media core.MediaHandle
	conn  core.NegotiationConn

	// Remote candidates that arrived before the remote description was
	// applied; drained in arrival order the moment it is.
	pendingRemote  []webrtc.ICECandidateInit
	remoteReady    bool
	applyingRemote bool

	mediaReady      bool
	answerRequested bool
	answerStarted   bool

	muted       bool
	videoOff    bool
	remoteMedia bool
}
