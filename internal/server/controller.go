package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/domain"
	"github.com/dkeye/Peercall/internal/protocol"
)

const serverWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns the WebSocket endpoint: upgrade, pumps, register binding
// and message forwarding.
type Controller struct {
	Registry *Registry
	Limiter  *RegisterRateLimiter

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(reg *Registry, limiter *RegisterRateLimiter, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{
		Registry:   reg,
		Limiter:    limiter,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "server").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	// Everything needed from the gin context is read here: gin recycles it
	// once this handler returns, so the pumps must never touch it.
	addr := c.ClientIP()

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	log.Info().Str("module", "server").Str("addr", addr).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn, addr)
	}()
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	// Closing the connection here unblocks readPump's ReadMessage, so a
	// cancelled context or write error tears the whole connection down.
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(serverWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(serverWriteWait)); err != nil {
				log.Error().Err(err).Str("module", "server").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "server").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump reads until the connection drops. The first accepted register
// binds the connection; everything else is forwarded by the to field.
func (ctl *Controller) readPump(ctx context.Context, c *wsConn, addr string) {
	var boundID domain.UserID
	defer func() {
		if boundID != "" {
			ctl.Registry.Unregister(boundID, c)
		}
		c.Close()
		log.Info().Str("module", "server").Str("user", string(boundID)).Msg("readPump closing")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Info().Err(err).Str("module", "server").Str("user", string(boundID)).Msg("readPump read error")
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Error().Err(err).Str("module", "server").Msg("bad signaling message")
			continue
		}

		if msg.Type == protocol.TypeRegister {
			boundID = ctl.register(c, msg, addr, boundID)
			continue
		}
		ctl.forward(boundID, msg, data)
	}
}

func (ctl *Controller) register(c *wsConn, msg protocol.Message, addr string, prev domain.UserID) domain.UserID {
	if err := domain.ValidateUserID(msg.From); err != nil {
		log.Warn().Err(err).Str("module", "server").Msg("register with bad user id")
		return prev
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(addr) {
		log.Warn().Str("module", "server").Str("addr", addr).Msg("register rate limited")
		return prev
	}
	if prev != "" && prev != msg.From {
		ctl.Registry.Unregister(prev, c)
	}
	if old := ctl.Registry.Register(msg.From, c); old != nil {
		old.Close()
	}
	return msg.From
}

// forward relays the raw bytes to the target's connection. Unknown targets
// and unbound senders are dropped: delivery is at-most-once and only while
// both sides are connected.
func (ctl *Controller) forward(boundID domain.UserID, msg protocol.Message, data []byte) {
	if boundID == "" || msg.From != boundID {
		log.Debug().Str("module", "server").Str("from", string(msg.From)).Msg("dropping message from unbound sender")
		return
	}
	if msg.To == "" {
		return
	}
	target, ok := ctl.Registry.Get(msg.To)
	if !ok {
		log.Debug().Str("module", "server").Str("to", string(msg.To)).Str("type", string(msg.Type)).Msg("target not registered, dropped")
		return
	}
	if err := target.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "server").Str("to", string(msg.To)).Msg("forward failed")
	}
}
