// Package signal implements the client side of the signaling channel: one
// persistent WebSocket connection to the signaling server with automatic
// re-register on reconnect.
package signal

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/domain"
	"github.com/dkeye/Peercall/internal/protocol"
)

const writeWait = 5 * time.Second

// Transport maintains the signaling connection for one local user.
// Messages sent while disconnected are dropped, never queued; inbound
// messages are delivered on Incoming in arrival order.
type Transport struct {
	url     string
	self    domain.UserID
	backoff Backoff
	dialer  *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	incoming chan protocol.Message
	cancel   context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
}

func NewTransport(url string, self domain.UserID, backoff Backoff) *Transport {
	if backoff == nil {
		backoff = FixedBackoff{Delay: 3 * time.Second}
	}
	return &Transport{
		url:      url,
		self:     self,
		backoff:  backoff,
		dialer:   websocket.DefaultDialer,
		incoming: make(chan protocol.Message, 64),
	}
}

// Connect starts the dial/register/read loop. It returns immediately; the
// loop runs until ctx is done or Close is called.
func (t *Transport) Connect(ctx context.Context) error {
	t.startOnce.Do(func() {
		ctx, t.cancel = context.WithCancel(ctx)
		go t.run(ctx)
	})
	return nil
}

func (t *Transport) Incoming() <-chan protocol.Message { return t.incoming }

// Send serializes and writes msg on the current connection. If there is no
// open connection the message is silently dropped.
func (t *Transport) Send(msg protocol.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		log.Debug().Str("module", "signal").Str("type", string(msg.Type)).Msg("send dropped, disconnected")
		return
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("set write deadline")
		return
	}
	if err := t.conn.WriteJSON(msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", string(msg.Type)).Msg("write error")
	}
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.mu.Lock()
		if t.conn != nil {
			_ = t.conn.Close()
		}
		t.mu.Unlock()
	})
	return nil
}

func (t *Transport) run(ctx context.Context) {
	defer close(t.incoming)
	for {
		conn, err := t.dial(ctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("url", t.url).Msg("dial failed")
			if !t.sleep(ctx) {
				return
			}
			continue
		}

		t.backoff.Reset()
		t.setConn(conn)
		log.Info().Str("module", "signal").Str("self", string(t.self)).Msg("connected and registered")

		t.readLoop(ctx, conn)
		t.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("module", "signal").Msg("connection lost, scheduling reconnect")
		if !t.sleep(ctx) {
			return
		}
	}
}

// dial opens the connection and immediately registers the local user so the
// server can route messages to this peer.
func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(protocol.NewRegister(t.self)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("module", "signal").Msg("read error")
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad signaling message")
			continue
		}
		select {
		case t.incoming <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

func (t *Transport) sleep(ctx context.Context) bool {
	select {
	case <-time.After(t.backoff.Next()):
		return true
	case <-ctx.Done():
		return false
	}
}
