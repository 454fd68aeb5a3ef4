package tracker

import "time"

// breaker suppresses flush attempts after repeated consecutive delivery
// failures, until a cooldown has elapsed since the last failure. Closed is
// normal operation; open means attempts are skipped. After the cooldown the
// breaker resets to closed and the next attempt is allowed through.
//
// Not safe for concurrent use: the Tracker's mutex guards all access.
type breaker struct {
	maxFailures int
	cooldown    time.Duration

	failures    int
	lastFailure time.Time
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	return &breaker{maxFailures: maxFailures, cooldown: cooldown}
}

// allow reports whether a flush attempt may proceed at the given wall-clock
// time. Once the cooldown has elapsed the breaker resets to closed, so the
// retry that follows starts from a clean failure count.
func (b *breaker) allow(now time.Time) bool {
	if b.failures < b.maxFailures {
		return true
	}
	if now.Sub(b.lastFailure) >= b.cooldown {
		b.reset()
		return true
	}
	return false
}

func (b *breaker) open(now time.Time) bool {
	return b.failures >= b.maxFailures && now.Sub(b.lastFailure) < b.cooldown
}

func (b *breaker) recordFailure(now time.Time) {
	b.failures++
	b.lastFailure = now
}

func (b *breaker) recordSuccess() {
	b.reset()
}

func (b *breaker) reset() {
	b.failures = 0
	b.lastFailure = time.Time{}
}
