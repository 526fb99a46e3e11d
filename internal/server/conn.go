// Package server is the signaling server: it accepts WebSocket connections,
// binds them to registered user IDs and forwards call signaling between
// peers without inspecting payloads.
package server

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrBackpressure = errors.New("backpressure")

// wsConn wraps one client connection with a bounded send queue. A full
// queue drops the message rather than blocking the forwarding path.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan []byte, 32),
	}
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
