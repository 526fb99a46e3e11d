package app_test

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Peercall/internal/core"
	"github.com/dkeye/Peercall/internal/domain"
	"github.com/dkeye/Peercall/internal/protocol"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []protocol.Message
	in   chan protocol.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan protocol.Message, 16)}
}

func (t *fakeTransport) Connect(context.Context) error { return nil }
func (t *fakeTransport) Close() error                  { return nil }

func (t *fakeTransport) Incoming() <-chan protocol.Message { return t.in }

func (t *fakeTransport) Send(msg protocol.Message) {
	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()
}

func (t *fakeTransport) deliver(msg protocol.Message) { t.in <- msg }

func (t *fakeTransport) countType(typ protocol.Type) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, m := range t.sent {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func (t *fakeTransport) lastOfType(typ protocol.Type) (protocol.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.sent) - 1; i >= 0; i-- {
		if t.sent[i].Type == typ {
			return t.sent[i], true
		}
	}
	return protocol.Message{}, false
}

type fakeHandle struct {
	kind domain.CallKind

	mu      sync.Mutex
	closes  int
	audioOn bool
	videoOn bool
}

func (h *fakeHandle) Kind() domain.CallKind       { return h.kind }
func (h *fakeHandle) Tracks() []webrtc.TrackLocal { return nil }

func (h *fakeHandle) SetAudioEnabled(enabled bool) {
	h.mu.Lock()
	h.audioOn = enabled
	h.mu.Unlock()
}

func (h *fakeHandle) SetVideoEnabled(enabled bool) {
	h.mu.Lock()
	h.videoOn = enabled
	h.mu.Unlock()
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	h.closes++
	h.mu.Unlock()
}

func (h *fakeHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

func (h *fakeHandle) audioEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audioOn
}

type fakeProvider struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	handles []*fakeHandle
}

func (p *fakeProvider) Acquire(_ context.Context, kind domain.CallKind) (core.MediaHandle, error) {
	p.mu.Lock()
	block := p.block
	err := p.err
	p.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	h := &fakeHandle{kind: kind, audioOn: true, videoOn: kind == domain.CallVideo}
	p.mu.Lock()
	p.handles = append(p.handles, h)
	p.mu.Unlock()
	return h, nil
}

func (p *fakeProvider) handleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *fakeProvider) handle(i int) *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[i]
}

type fakeConn struct {
	mu         sync.Mutex
	remoteSet  bool
	candidates []webrtc.ICECandidateInit
	closes     int
	audioSends bool
	videoSends bool

	attachErr error
	offerErr  error
	answerErr error
	remoteErr error

	onCand  func(webrtc.ICECandidateInit)
	onTrack func(*webrtc.TrackRemote)
	onState func(webrtc.PeerConnectionState)
}

func (c *fakeConn) OnLocalCandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onCand = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *fakeConn) AttachLocalMedia(core.MediaHandle) error {
	if c.attachErr != nil {
		return c.attachErr
	}
	c.mu.Lock()
	c.audioSends = true
	c.videoSends = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetAudioEnabled(enabled bool) error {
	c.mu.Lock()
	c.audioSends = enabled
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetVideoEnabled(enabled bool) error {
	c.mu.Lock()
	c.videoSends = enabled
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) audioSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioSends
}

func (c *fakeConn) videoSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoSends
}

func (c *fakeConn) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	if c.offerErr != nil {
		return webrtc.SessionDescription{}, c.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}, nil
}

func (c *fakeConn) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	if c.answerErr != nil {
		return webrtc.SessionDescription{}, c.answerErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		return webrtc.SessionDescription{}, core.ErrInvalidState
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}, nil
}

func (c *fakeConn) SetRemoteDescription(_ context.Context, _ webrtc.SessionDescription) error {
	if c.remoteErr != nil {
		return c.remoteErr
	}
	c.mu.Lock()
	c.remoteSet = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) AddCandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		return core.ErrInvalidState
	}
	c.candidates = append(c.candidates, ci)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) appliedCandidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.candidates))
	for _, ci := range c.candidates {
		out = append(out, ci.Candidate)
	}
	return out
}

func (c *fakeConn) fireTrack(track *webrtc.TrackRemote) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	if fn != nil {
		fn(track)
	}
}

func (c *fakeConn) fireState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *fakeConn) fireCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onCand
	c.mu.Unlock()
	if fn != nil {
		fn(ci)
	}
}

type fakeEngine struct {
	mu    sync.Mutex
	err   error
	conns []*fakeConn
}

func (e *fakeEngine) NewConnection() (core.NegotiationConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	c := &fakeConn{}
	e.conns = append(e.conns, c)
	return c, nil
}

func (e *fakeEngine) connCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

func (e *fakeEngine) conn(i int) *fakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[i]
}

type fakeAuthorizer struct {
	err error
}

func (a *fakeAuthorizer) AuthorizeCall(_, _ domain.UserID, _ domain.CallKind) error {
	return a.err
}
