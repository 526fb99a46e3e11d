package server

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/domain"
)

// Registry maps registered user IDs to their live signaling connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]*wsConn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]*wsConn)}
}

// Register binds id to conn. A second register for the same user replaces
// the previous connection; the displaced one is returned so the caller can
// close it.
func (r *Registry) Register(id domain.UserID, conn *wsConn) *wsConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.conns[id]
	if old == conn {
		return nil
	}
	r.conns[id] = conn
	log.Info().Str("module", "server.registry").Str("user", string(id)).Bool("replaced", old != nil).Msg("registered")
	return old
}

// Unregister removes the binding, but only if conn still owns it — a stale
// connection must not evict its replacement.
func (r *Registry) Unregister(id domain.UserID, conn *wsConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[id] != conn {
		return
	}
	delete(r.conns, id)
	log.Info().Str("module", "server.registry").Str("user", string(id)).Msg("unregistered")
}

func (r *Registry) Get(id domain.UserID) (*wsConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
