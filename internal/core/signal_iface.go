package core

import (
	"context"

	"github.com/dkeye/Peercall/internal/protocol"
)

// SignalTransport is the persistent control channel to the signaling server.
// Owned by the adapter; the adapter must Close() it.
//
// Send is fire-and-forget: while the connection is down messages are dropped,
// not queued, and no error is returned. Incoming delivers decoded messages
// in arrival order; the channel is closed when the transport shuts down.
type SignalTransport interface {
	// Connect starts the connection loop (dial, register, reconnect) and
	// returns once the loop is running. The loop stops when ctx is done.
	Connect(ctx context.Context) error
	Send(msg protocol.Message)
	Incoming() <-chan protocol.Message
	Close() error
}
