// Package backoff maps a retry attempt number to a capped exponential
// delay. Pure; the connection manager owns the timers.
package backoff

import "time"

type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// Default mirrors the reconnect schedule the web client shipped with:
// 1s, 2s, 4s, ... capped at 30s, five attempts.
func Default() Policy {
	return Policy{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before attempt (0-based). The second return is
// false once the attempt budget is exhausted; no timer may be scheduled
// after that.
func (p Policy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 0 || attempt >= p.MaxAttempts {
		return 0, false
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap, true
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	return d, true
}
