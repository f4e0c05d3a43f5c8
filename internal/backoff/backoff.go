// Package backoff computes retry delays for failed transcode attempts.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy computes the delay before the attempt that follows attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt and adds a random jitter on top:
// min(Base * 2^(attempt-1), Max) + U[0, Jitter * that).
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64
}

func NewExponential(base, maxDelay time.Duration, jitter float64) *Exponential {
	return &Exponential{Base: base, Max: maxDelay, Jitter: jitter}
}

// BaseDelay returns the delay for attempt n without jitter.
func (e *Exponential) BaseDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	return time.Duration(d)
}

func (e *Exponential) Delay(attempt int) time.Duration {
	d := e.BaseDelay(attempt)
	if e.Jitter <= 0 {
		return d
	}
	r := e.Rand
	if r == nil {
		r = rand.Float64 //nolint:gosec // jitter does not need crypto rand
	}
	return d + time.Duration(r()*e.Jitter*float64(d))
}
