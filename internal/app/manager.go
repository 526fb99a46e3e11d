// Package app holds the call session manager: the state machine that drives
// the signaling transport and the negotiation engine in response to user
// intent and remote events.
package app

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/core"
	"github.com/dkeye/Peercall/internal/domain"
)

// Deps wires the manager's collaborators. Transport, Engine and Media are
// required; Authorizer and OnRemoteTrack are optional.
type Deps struct {
	Self        domain.UserID
	DisplayName string

	Transport core.SignalTransport
	Engine    core.NegotiationEngine
	Media     core.MediaProvider

	Authorizer core.Authorizer
	// OnRemoteTrack is invoked from the event loop when remote media
	// arrives; it must not block.
	OnRemoteTrack func(*webrtc.TrackRemote)
}

// Manager owns at most one call session for one local user. All mutations
// happen on the Run loop; the exported methods post events and wait for the
// synchronous part of the answer.
type Manager struct {
	self     domain.UserID
	selfName string

	transport core.SignalTransport
	engine    core.NegotiationEngine
	media     core.MediaProvider
	auth      core.Authorizer
	onTrack   func(*webrtc.TrackRemote)

	events chan event
	done   chan struct{}

	watchMu  sync.Mutex
	watchers []chan core.Snapshot

	// Loop-owned state. Never touched outside Run.
	cur     *session
	lastEnd domain.EndReason
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		self:      deps.Self,
		selfName:  deps.DisplayName,
		transport: deps.Transport,
		engine:    deps.Engine,
		media:     deps.Media,
		auth:      deps.Authorizer,
		onTrack:   deps.OnRemoteTrack,
		events:    make(chan event, 64),
		done:      make(chan struct{}),
	}
}

// Run processes events until ctx is done. It must be called exactly once.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	log.Info().Str("module", "app.session").Str("self", string(m.self)).Msg("session manager running")

	incoming := m.transport.Incoming()
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case msg, ok := <-incoming:
			if !ok {
				incoming = nil
				continue
			}
			m.handleMessage(ctx, msg)
		case ev := <-m.events:
			m.handleEvent(ctx, ev)
		}
	}
}

// StartCall initiates an outgoing call. Precondition failures
// (ErrAlreadyInCall, authorization denial) come back synchronously; media
// and negotiation failures surface later as a terminal snapshot.
func (m *Manager) StartCall(remote domain.UserID, displayName string, kind domain.CallKind) error {
	if !kind.Valid() {
		return core.ErrInvalidState
	}
	if err := domain.ValidateUserID(remote); err != nil {
		return err
	}
	in := intentStart{remote: remote, displayName: displayName, kind: kind, reply: make(chan error, 1)}
	return m.ask(in, in.reply)
}

// AnswerCall accepts the currently ringing incoming call.
func (m *Manager) AnswerCall() error {
	in := intentAnswer{reply: make(chan error, 1)}
	return m.ask(in, in.reply)
}

// RejectCall declines the currently ringing incoming call.
func (m *Manager) RejectCall() error {
	in := intentReject{reply: make(chan error, 1)}
	return m.ask(in, in.reply)
}

// EndCall hangs up from any non-idle state.
func (m *Manager) EndCall() error {
	in := intentEnd{reply: make(chan error, 1)}
	return m.ask(in, in.reply)
}

// ToggleMute flips the microphone and reports the new muted state.
func (m *Manager) ToggleMute() (bool, error) {
	in := intentToggleMute{reply: make(chan toggleResult, 1)}
	return m.askToggle(in, in.reply)
}

// ToggleVideo flips the camera on a video call and reports whether video is
// now disabled.
func (m *Manager) ToggleVideo() (bool, error) {
	in := intentToggleVideo{reply: make(chan toggleResult, 1)}
	return m.askToggle(in, in.reply)
}

// Snapshot returns the current observable call state.
func (m *Manager) Snapshot() core.Snapshot {
	q := querySnapshot{reply: make(chan core.Snapshot, 1)}
	if err := m.post(q); err != nil {
		return core.Snapshot{State: domain.StateIdle}
	}
	select {
	case s := <-q.reply:
		return s
	case <-m.done:
		return core.Snapshot{State: domain.StateIdle}
	}
}

// Watch returns a channel of snapshots published on every state change.
// Slow consumers miss intermediate snapshots, never block the loop.
func (m *Manager) Watch() <-chan core.Snapshot {
	ch := make(chan core.Snapshot, 8)
	m.watchMu.Lock()
	m.watchers = append(m.watchers, ch)
	m.watchMu.Unlock()
	return ch
}

func (m *Manager) ask(ev event, reply chan error) error {
	if err := m.post(ev); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return core.ErrNotRunning
	}
}

func (m *Manager) askToggle(ev event, reply chan toggleResult) (bool, error) {
	if err := m.post(ev); err != nil {
		return false, err
	}
	select {
	case res := <-reply:
		return res.on, res.err
	case <-m.done:
		return false, core.ErrNotRunning
	}
}

func (m *Manager) post(ev event) error {
	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return core.ErrNotRunning
	}
}

// postFromCallback is used from engine callbacks and completion goroutines.
// It prefers the ordered fast path but never blocks the caller. The fallback
// goroutine can deliver its event after later ones if the 64-slot buffer is
// full; the only events that arrive this way are local ICE candidates, track
// notifications and state changes, none of which depend on relative order
// (remote candidates, which must stay ordered, flow through the transport's
// incoming channel instead).
func (m *Manager) postFromCallback(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	default:
		go func() {
			select {
			case m.events <- ev:
			case <-m.done:
			}
		}()
	}
}

func (m *Manager) snapshot() core.Snapshot {
	s := m.cur
	if s == nil {
		return core.Snapshot{State: domain.StateIdle, LastEnd: m.lastEnd}
	}
	return core.Snapshot{
		State:       s.state,
		Direction:   s.direction,
		Kind:        s.kind,
		RemoteID:    s.remote,
		RemoteName:  s.remoteName,
		Muted:       s.muted,
		VideoOff:    s.videoOff,
		RemoteMedia: s.remoteMedia,
		LastEnd:     m.lastEnd,
	}
}

func (m *Manager) publish() {
	snap := m.snapshot()
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *Manager) shutdown() {
	if m.cur != nil {
		log.Info().Str("module", "app.session").Msg("shutdown with active session, hanging up")
		m.endSession(domain.EndLocalHangup, true, false)
	}
}
