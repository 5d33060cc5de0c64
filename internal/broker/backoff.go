package broker

import "time"

// linearBackOff waits base, 2*base, 3*base, ... between attempts.
// It implements backoff.BackOff.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}
