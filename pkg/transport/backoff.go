package transport

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits base*n before the n-th attempt.
type linearBackOff struct {
	base    time.Duration
	attempt int64
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return l.base * time.Duration(l.attempt)
}

func (l *linearBackOff) Reset() { l.attempt = 0 }

// newReconnectBackOff yields base, 2*base, ... maxAttempts*base and then
// backoff.Stop.
func newReconnectBackOff(base time.Duration, maxAttempts int) backoff.BackOff {
	return backoff.WithMaxRetries(&linearBackOff{base: base}, uint64(maxAttempts))
}
