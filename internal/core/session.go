package core

import "github.com/dkeye/Peercall/internal/domain"

// Snapshot is the read-only view of the current call the UI layer observes.
type Snapshot struct {
	State       domain.CallState     `json:"state"`
	Direction   domain.CallDirection `json:"direction,omitempty"`
	Kind        domain.CallKind      `json:"kind,omitempty"`
	RemoteID    domain.UserID        `json:"remote_id,omitempty"`
	RemoteName  string               `json:"remote_name,omitempty"`
	Muted       bool                 `json:"muted"`
	VideoOff    bool                 `json:"video_off"`
	RemoteMedia bool                 `json:"remote_media"`
	// LastEnd explains why the previous session ended; reset when a new
	// session starts.
	LastEnd domain.EndReason `json:"last_end,omitempty"`
}

// Authorizer gates call initiation before any state change happens
// (premium-plan limits and the like live behind this).
type Authorizer interface {
	AuthorizeCall(local, remote domain.UserID, kind domain.CallKind) error
}
