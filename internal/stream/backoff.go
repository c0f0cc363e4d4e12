package stream

import (
	"time"
)

// Backoff computes reconnect delays: Base * 2^min(attempts, CapExponent), never above Max.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	CapExponent int
}

// DefaultBackoff returns 1s doubling up to 30s, exponent capped at 5.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        1 * time.Second,
		Max:         30 * time.Second,
		CapExponent: 5,
	}
}

// Delay returns the wait before the reconnect that follows attempts failed tries.
// Negative attempts are treated as zero.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	exp := attempts
	if exp > b.CapExponent {
		exp = b.CapExponent
	}
	// 2^30 seconds is far beyond any sane Max; also keeps the shift from overflowing.
	if exp > 30 {
		return b.Max
	}

	delay := b.Base * time.Duration(1<<exp)
	if delay > b.Max || delay <= 0 {
		return b.Max
	}
	return delay
}
