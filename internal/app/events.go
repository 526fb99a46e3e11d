package app

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Peercall/internal/core"
	"github.com/dkeye/Peercall/internal/domain"
)

// All state mutations run on the manager's single event loop. User intents,
// async completions and engine callbacks are all posted here as events, so
// the state machine needs no locks.
type event interface{ isEvent() }

type toggleResult struct {
	on  bool
	err error
}

// User intents. The reply channel carries the synchronous precondition
// result; everything after that surfaces through snapshots.
type intentStart struct {
	remote      domain.UserID
	displayName string
	kind        domain.CallKind
	reply       chan error
}

type intentAnswer struct{ reply chan error }
type intentReject struct{ reply chan error }
type intentEnd struct{ reply chan error }
type intentToggleMute struct{ reply chan toggleResult }
type intentToggleVideo struct{ reply chan toggleResult }
type querySnapshot struct{ reply chan core.Snapshot }

// Async completions are tagged with the session they were started for; the
// loop discards results whose session is no longer current.
type evMediaAcquired struct {
	sid    string
	handle core.MediaHandle
	err    error
}

type evOfferReady struct {
	sid string
	sdp webrtc.SessionDescription
	err error
}

type evAnswerReady struct {
	sid string
	sdp webrtc.SessionDescription
	err error
}

type evRemoteApplied struct {
	sid string
	err error
}

// Negotiation engine callbacks, converted to events.
type evLocalCandidate struct {
	sid  string
	cand webrtc.ICECandidateInit
}

type evConnState struct {
	sid   string
	state webrtc.PeerConnectionState
}

type evRemoteTrack struct {
	sid   string
	track *webrtc.TrackRemote
}

func (intentStart) isEvent()       {}
func (intentAnswer) isEvent()      {}
func (intentReject) isEvent()      {}
func (intentEnd) isEvent()         {}
func (intentToggleMute) isEvent()  {}
func (intentToggleVideo) isEvent() {}
func (querySnapshot) isEvent()     {}
func (evMediaAcquired) isEvent()   {}
func (evOfferReady) isEvent()      {}
func (evAnswerReady) isEvent()     {}
func (evRemoteApplied) isEvent()   {}
func (evLocalCandidate) isEvent()  {}
func (evConnState) isEvent()       {}
func (evRemoteTrack) isEvent()     {}
