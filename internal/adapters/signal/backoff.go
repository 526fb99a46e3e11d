package signal

import "time"

// Backoff decides how long to wait before the next reconnection attempt.
// Injected so tests can drive disconnect/reconnect deterministically.
type Backoff interface {
	Next() time.Duration
	Reset()
}

// FixedBackoff waits the same delay between every attempt.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next() time.Duration { return b.Delay }
func (b FixedBackoff) Reset()              {}
