package sender

import (
	"math/rand"
	"time"
)

// BaseDelay is the deterministic part of the retry schedule:
// base * 2^(attempt-1). Attempt numbers start at 1.
func BaseDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Backoff adds a uniform jitter term on top of BaseDelay so many deliveries
// scheduled at the same instant do not retry in lockstep.
func Backoff(attempt int, base, jitter time.Duration) time.Duration {
	d := BaseDelay(attempt, base)
	if jitter > 0 {
		d += time.Duration(rand.Int63n(int64(jitter)))
	}
	return d
}
