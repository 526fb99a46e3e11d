package domain

// CallKind is fixed for the lifetime of a call, chosen at initiation.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallAudio || k == CallVideo
}

type CallDirection string

const (
	DirectionOutgoing CallDirection = "outgoing"
	DirectionIncoming CallDirection = "incoming"
)

// CallState is the observable phase of the single call a user may be in.
// Ended and Failed both collapse back to StateIdle; the cause travels
// separately as an EndReason.
type CallState int

const (
	StateIdle CallState = iota
	StateOutgoing
	StateIncoming
	StateActive
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOutgoing:
		return "outgoing"
	case StateIncoming:
		return "incoming"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// EndReason records why the last call left a non-idle state.
type EndReason string

const (
	EndNone            EndReason = ""
	EndLocalHangup     EndReason = "local_hangup"
	EndRemoteHangup    EndReason = "remote_hangup"
	EndLocalReject     EndReason = "local_reject"
	EndRemoteReject    EndReason = "remote_reject"
	EndMediaFailure    EndReason = "media_failure"
	EndNegotiation     EndReason = "negotiation_failure"
	EndGlareSuperseded EndReason = "glare_superseded"
)
