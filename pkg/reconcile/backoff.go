package reconcile

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes retry delays for failed postings: exponential growth
// with jitter so postings queued by the same outage do not all come due
// at once.
type Backoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval returns the delay before the given attempt (starting
// at 1). Zero-valued fields fall back to defaults suited to transient
// database outages.
func (b Backoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := b.InitialInterval
	if initial == 0 {
		initial = 30 * time.Second
	}
	max := b.MaxInterval
	if max == 0 {
		max = 30 * time.Minute
	}
	multiplier := b.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if jitter := b.JitterFactor; jitter > 0 {
		interval *= 1 + (rand.Float64()*2-1)*jitter
	}
	if interval > float64(max) {
		interval = float64(max)
	}
	return time.Duration(interval)
}
