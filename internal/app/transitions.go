package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/core"
	"github.com/dkeye/Peercall/internal/domain"
	"github.com/dkeye/Peercall/internal/protocol"
)

func (m *Manager) handleEvent(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case intentStart:
		m.handleStart(ctx, e)
	case intentAnswer:
		m.handleAnswer(ctx, e)
	case intentReject:
		m.handleReject(e)
	case intentEnd:
		m.handleEnd(e)
	case intentToggleMute:
		m.handleToggleMute(e)
	case intentToggleVideo:
		m.handleToggleVideo(e)
	case querySnapshot:
		e.reply <- m.snapshot()
	case evMediaAcquired:
		m.handleMediaAcquired(ctx, e)
	case evOfferReady:
		m.handleOfferReady(e)
	case evAnswerReady:
		m.handleAnswerReady(e)
	case evRemoteApplied:
		m.handleRemoteApplied(ctx, e)
	case evLocalCandidate:
		m.handleLocalCandidate(e)
	case evConnState:
		m.handleConnState(e)
	case evRemoteTrack:
		m.handleRemoteTrack(e)
	}
}

func (m *Manager) handleMessage(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeCallOffer:
		m.receiveOffer(ctx, msg)
	case protocol.TypeCallAnswer:
		m.receiveAnswer(ctx, msg)
	case protocol.TypeCandidate:
		m.receiveCandidate(msg)
	case protocol.TypeCallReject:
		m.receiveReject(msg)
	case protocol.TypeCallEnd:
		m.receiveEnd(msg)
	default:
		log.Warn().Str("module", "app.session").Str("type", string(msg.Type)).Msg("unknown signal")
	}
}

// handleStart is T1: Idle -> Outgoing. The session exists from here on, so a
// second start is rejected while media acquisition is still in flight.
func (m *Manager) handleStart(ctx context.Context, in intentStart) {
	if m.cur != nil {
		in.reply <- core.ErrAlreadyInCall
		return
	}
	if m.auth != nil {
		if err := m.auth.AuthorizeCall(m.self, in.remote, in.kind); err != nil {
			in.reply <- err
			return
		}
	}

	s := &session{
		id:         uuid.NewString(),
		remote:     in.remote,
		remoteName: in.displayName,
		kind:       in.kind,
		direction:  domain.DirectionOutgoing,
		state:      domain.StateOutgoing,
	}
	m.cur = s
	m.lastEnd = domain.EndNone
	in.reply <- nil

	log.Info().Str("module", "app.session").Str("remote", string(s.remote)).Str("kind", string(s.kind)).Msg("call started")
	m.publish()
	m.acquireMedia(ctx, s)
}

// receiveOffer is T2: Idle -> Incoming, plus the glare tie-break. When both
// peers dial each other, the lexicographically smaller user ID keeps its
// outgoing call; the other side abandons its attempt and rings instead.
func (m *Manager) receiveOffer(ctx context.Context, msg protocol.Message) {
	if s := m.cur; s != nil {
		glare := s.direction == domain.DirectionOutgoing &&
			s.state == domain.StateOutgoing &&
			msg.From == s.remote
		if !glare {
			log.Debug().Str("module", "app.session").Str("from", string(msg.From)).Msg("offer while busy, dropped")
			return
		}
		if m.self < msg.From {
			log.Info().Str("module", "app.session").Str("from", string(msg.From)).Msg("glare: local offer wins, inbound dropped")
			return
		}
		log.Info().Str("module", "app.session").Str("from", string(msg.From)).Msg("glare: remote offer wins, abandoning local attempt")
		m.endSession(domain.EndGlareSuperseded, false, false)
	}

	conn, err := m.engine.NewConnection()
	if err != nil {
		log.Error().Err(err).Str("module", "app.session").Msg("new negotiation context")
		m.transport.Send(protocol.NewCallReject(m.self, msg.From))
		return
	}

	s := &session{
		id:         uuid.NewString(),
		remote:     msg.From,
		remoteName: msg.DisplayName,
		kind:       msg.Kind(),
		direction:  domain.DirectionIncoming,
		state:      domain.StateIncoming,
	}
	m.cur = s
	m.lastEnd = domain.EndNone
	m.bindConn(s, conn)
	m.applyRemote(ctx, s, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP})

	log.Info().Str("module", "app.session").Str("from", string(s.remote)).Str("kind", string(s.kind)).Msg("incoming call")
	m.publish()
}

// handleAnswer is the local half of T3. Media acquisition, then the answer
// itself, complete asynchronously.
func (m *Manager) handleAnswer(ctx context.Context, in intentAnswer) {
	s := m.cur
	if s == nil || s.direction != domain.DirectionIncoming || s.state != domain.StateIncoming || s.answerRequested {
		in.reply <- core.ErrInvalidState
		return
	}
	s.answerRequested = true
	in.reply <- nil
	m.acquireMedia(ctx, s)
}

// receiveAnswer is T4: Outgoing -> Active once the description applies.
func (m *Manager) receiveAnswer(ctx context.Context, msg protocol.Message) {
	s := m.cur
	if s == nil || s.state != domain.StateOutgoing || msg.From != s.remote {
		log.Debug().Str("module", "app.session").Str("from", string(msg.From)).Msg("unexpected answer, dropped")
		return
	}
	if s.remoteReady || s.applyingRemote {
		return
	}
	m.applyRemote(ctx, s, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP})
}

// receiveCandidate is T5: apply immediately once the remote description is
// set, otherwise buffer in arrival order.
func (m *Manager) receiveCandidate(msg protocol.Message) {
	s := m.cur
	if s == nil || msg.From != s.remote {
		return
	}
	ci := msg.CandidateInit()
	if !s.remoteReady {
		s.pendingRemote = append(s.pendingRemote, ci)
		return
	}
	if err := s.conn.AddCandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "app.session").Msg("add remote candidate")
	}
}

// handleReject is T6: Incoming -> Idle, notifying the caller.
func (m *Manager) handleReject(in intentReject) {
	s := m.cur
	if s == nil || s.direction != domain.DirectionIncoming || s.state != domain.StateIncoming {
		in.reply <- core.ErrInvalidState
		return
	}
	in.reply <- nil
	m.endSession(domain.EndLocalReject, false, true)
}

// receiveReject is T7: Outgoing -> Idle, nothing sent back.
func (m *Manager) receiveReject(msg protocol.Message) {
	s := m.cur
	if s == nil || s.state != domain.StateOutgoing || msg.From != s.remote {
		return
	}
	m.endSession(domain.EndRemoteReject, false, false)
}

// handleEnd is T8: hang up from any non-idle state.
func (m *Manager) handleEnd(in intentEnd) {
	if m.cur == nil {
		in.reply <- core.ErrInvalidState
		return
	}
	in.reply <- nil
	m.endSession(domain.EndLocalHangup, true, false)
}

// receiveEnd is T9: the remote mirror of T8, no reply sent.
func (m *Manager) receiveEnd(msg protocol.Message) {
	s := m.cur
	if s == nil || msg.From != s.remote {
		return
	}
	m.endSession(domain.EndRemoteHangup, false, false)
}

func (m *Manager) handleToggleMute(in intentToggleMute) {
	s := m.cur
	if s == nil {
		in.reply <- toggleResult{err: core.ErrInvalidState}
		return
	}
	s.muted = !s.muted
	if s.media != nil {
		s.media.SetAudioEnabled(!s.muted)
	}
	// The actual mute: detach the audio track from its sender so nothing
	// reaches the peer while muted.
	if s.conn != nil {
		if err := s.conn.SetAudioEnabled(!s.muted); err != nil {
			log.Error().Err(err).Str("module", "app.session").Msg("toggle audio sender")
		}
	}
	m.publish()
	in.reply <- toggleResult{on: s.muted}
}

func (m *Manager) handleToggleVideo(in intentToggleVideo) {
	s := m.cur
	if s == nil || s.kind != domain.CallVideo {
		in.reply <- toggleResult{err: core.ErrInvalidState}
		return
	}
	s.videoOff = !s.videoOff
	if s.media != nil {
		s.media.SetVideoEnabled(!s.videoOff)
	}
	if s.conn != nil {
		if err := s.conn.SetVideoEnabled(!s.videoOff); err != nil {
			log.Error().Err(err).Str("module", "app.session").Msg("toggle video sender")
		}
	}
	m.publish()
	in.reply <- toggleResult{on: s.videoOff}
}

// handleMediaAcquired commits or discards the result of the async device
// acquisition. A session that ended while the prompt was pending gets its
// freshly acquired devices released immediately.
func (m *Manager) handleMediaAcquired(ctx context.Context, ev evMediaAcquired) {
	s := m.cur
	if s == nil || s.id != ev.sid {
		if ev.handle != nil {
			ev.handle.Close()
		}
		return
	}
	if ev.err != nil {
		log.Warn().Err(ev.err).Str("module", "app.session").Msg("media acquisition failed")
		// An incoming call must tell the caller; an outgoing one never
		// announced itself, so nothing is sent.
		m.endSession(domain.EndMediaFailure, false, s.direction == domain.DirectionIncoming)
		return
	}

	s.media = ev.handle
	s.mediaReady = true
	s.media.SetAudioEnabled(!s.muted)
	if s.kind == domain.CallVideo {
		s.media.SetVideoEnabled(!s.videoOff)
	}

	if s.conn == nil {
		conn, err := m.engine.NewConnection()
		if err != nil {
			log.Error().Err(err).Str("module", "app.session").Msg("new negotiation context")
			m.endSession(domain.EndNegotiation, false, s.direction == domain.DirectionIncoming)
			return
		}
		m.bindConn(s, conn)
	}
	if err := s.conn.AttachLocalMedia(s.media); err != nil {
		log.Error().Err(err).Str("module", "app.session").Msg("attach local media")
		m.endSession(domain.EndNegotiation, false, s.direction == domain.DirectionIncoming)
		return
	}
	// Toggles flipped while acquisition was pending apply to the senders now.
	if s.muted {
		if err := s.conn.SetAudioEnabled(false); err != nil {
			log.Error().Err(err).Str("module", "app.session").Msg("toggle audio sender")
		}
	}
	if s.kind == domain.CallVideo && s.videoOff {
		if err := s.conn.SetVideoEnabled(false); err != nil {
			log.Error().Err(err).Str("module", "app.session").Msg("toggle video sender")
		}
	}

	if s.direction == domain.DirectionOutgoing {
		m.createOffer(ctx, s)
		return
	}
	m.maybeCreateAnswer(ctx, s)
}

func (m *Manager) handleOfferReady(ev evOfferReady) {
	s := m.cur
	if s == nil || s.id != ev.sid {
		return
	}
	if ev.err != nil {
		log.Error().Err(ev.err).Str("module", "app.session").Msg("create offer")
		m.endSession(domain.EndNegotiation, false, false)
		return
	}
	m.transport.Send(protocol.NewCallOffer(m.self, s.remote, ev.sdp.SDP, s.kind, m.selfName))
}

func (m *Manager) handleAnswerReady(ev evAnswerReady) {
	s := m.cur
	if s == nil || s.id != ev.sid {
		return
	}
	if ev.err != nil {
		log.Error().Err(ev.err).Str("module", "app.session").Msg("create answer")
		m.endSession(domain.EndNegotiation, false, true)
		return
	}
	m.transport.Send(protocol.NewCallAnswer(m.self, s.remote, ev.sdp.SDP))
	s.state = domain.StateActive
	log.Info().Str("module", "app.session").Str("remote", string(s.remote)).Msg("call active")
	m.publish()
}

// handleRemoteApplied drains buffered candidates in arrival order the moment
// the remote description lands, then finishes T2 or T4.
func (m *Manager) handleRemoteApplied(ctx context.Context, ev evRemoteApplied) {
	s := m.cur
	if s == nil || s.id != ev.sid {
		return
	}
	s.applyingRemote = false
	if ev.err != nil {
		log.Error().Err(ev.err).Str("module", "app.session").Msg("set remote description")
		m.endSession(domain.EndNegotiation, s.direction == domain.DirectionOutgoing, s.direction == domain.DirectionIncoming)
		return
	}

	s.remoteReady = true
	for _, ci := range s.pendingRemote {
		if err := s.conn.AddCandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "app.session").Msg("apply buffered candidate")
		}
	}
	s.pendingRemote = nil

	if s.direction == domain.DirectionOutgoing {
		s.state = domain.StateActive
		log.Info().Str("module", "app.session").Str("remote", string(s.remote)).Msg("call active")
		m.publish()
		return
	}
	m.maybeCreateAnswer(ctx, s)
}

func (m *Manager) handleLocalCandidate(ev evLocalCandidate) {
	s := m.cur
	if s == nil || s.id != ev.sid {
		return
	}
	m.transport.Send(protocol.NewCandidate(m.self, s.remote, ev.cand))
}

// handleConnState is T10: a terminal report from the negotiation transport
// ends the session autonomously, with a best-effort call-end.
func (m *Manager) handleConnState(ev evConnState) {
	s := m.cur
	if s == nil || s.id != ev.sid {
		return
	}
	switch ev.state {
	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateClosed:
		log.Warn().Str("module", "app.session").Str("state", ev.state.String()).Msg("negotiation transport terminal")
		m.endSession(domain.EndNegotiation, true, false)
	}
}

func (m *Manager) handleRemoteTrack(ev evRemoteTrack) {
	s := m.cur
	if s == nil || s.id != ev.sid {
		return
	}
	s.remoteMedia = true
	if m.onTrack != nil {
		m.onTrack(ev.track)
	}
	m.publish()
}

// bindConn registers engine callbacks that feed the event loop, tagged with
// the session they belong to.
func (m *Manager) bindConn(s *session, conn core.NegotiationConn) {
	s.conn = conn
	sid := s.id
	conn.OnLocalCandidate(func(ci webrtc.ICECandidateInit) {
		m.postFromCallback(evLocalCandidate{sid: sid, cand: ci})
	})
	conn.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		m.postFromCallback(evRemoteTrack{sid: sid, track: track})
	})
	conn.OnStateChange(func(st webrtc.PeerConnectionState) {
		m.postFromCallback(evConnState{sid: sid, state: st})
	})
}

func (m *Manager) acquireMedia(ctx context.Context, s *session) {
	sid := s.id
	go func() {
		handle, err := m.media.Acquire(ctx, s.kind)
		if postErr := m.post(evMediaAcquired{sid: sid, handle: handle, err: err}); postErr != nil && handle != nil {
			handle.Close()
		}
	}()
}

func (m *Manager) createOffer(ctx context.Context, s *session) {
	sid, conn := s.id, s.conn
	go func() {
		sdp, err := conn.CreateOffer(ctx)
		m.postFromCallback(evOfferReady{sid: sid, sdp: sdp, err: err})
	}()
}

func (m *Manager) applyRemote(ctx context.Context, s *session, sdp webrtc.SessionDescription) {
	s.applyingRemote = true
	sid, conn := s.id, s.conn
	go func() {
		err := conn.SetRemoteDescription(ctx, sdp)
		m.postFromCallback(evRemoteApplied{sid: sid, err: err})
	}()
}

// maybeCreateAnswer runs once both halves of T3 are in place: the user has
// answered (media acquired) and the offer's description has been applied.
func (m *Manager) maybeCreateAnswer(ctx context.Context, s *session) {
	if !s.answerRequested || !s.mediaReady || !s.remoteReady || s.answerStarted {
		return
	}
	s.answerStarted = true
	sid, conn := s.id, s.conn
	go func() {
		sdp, err := conn.CreateAnswer(ctx)
		m.postFromCallback(evAnswerReady{sid: sid, sdp: sdp, err: err})
	}()
}

// endSession is the single terminal path. It releases media exactly once,
// closes the negotiation context and collapses back to idle.
func (m *Manager) endSession(reason domain.EndReason, sendEnd, sendReject bool) {
	s := m.cur
	if s == nil {
		return
	}
	if sendEnd {
		m.transport.Send(protocol.NewCallEnd(m.self, s.remote))
	}
	if sendReject {
		m.transport.Send(protocol.NewCallReject(m.self, s.remote))
	}
	if s.media != nil {
		s.media.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	m.cur = nil
	m.lastEnd = reason
	log.Info().
		Str("module", "app.session").
		Str("remote", string(s.remote)).
		Str("reason", string(reason)).
		Msg("session ended")
	m.publish()
}
