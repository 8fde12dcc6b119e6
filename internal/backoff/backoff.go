// Package backoff computes the supervisor's restart/cooldown delay, per
// spec §4.1: min(maxDelay, initialDelay * 2^(restartCount-1)) with a
// [0.5,1.0] jitter window.
package backoff

import (
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
)

const (
	InitialDelay = time.Second
	MaxDelay     = 30 * time.Second
)

// Policy computes cooldown delays for successive restart attempts. It
// wraps cenkalti/backoff's ExponentialBackOff, configured so its
// randomization factor reproduces the spec's [0.5,1.0] jitter band
// around the doubling sequence instead of the library's default
// symmetric jitter.
type Policy struct {
	initial time.Duration
	max     time.Duration
}

func NewPolicy() *Policy {
	return &Policy{initial: InitialDelay, max: MaxDelay}
}

// Delay returns the cooldown duration before restart attempt number
// restartCount (1-indexed: the first retry after a failure is
// restartCount=1).
func (p *Policy) Delay(restartCount int) time.Duration {
	if restartCount < 1 {
		restartCount = 1
	}

	base := p.initial
	for i := 1; i < restartCount; i++ {
		base *= 2
		if base >= p.max {
			base = p.max
			break
		}
	}

	eb := cenkalti.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.MaxInterval = p.max
	eb.Multiplier = 1
	eb.RandomizationFactor = 0.5 // jitter in [0.5*base, 1.5*base], then clamp
	eb.MaxElapsedTime = 0
	eb.Reset()

	d := eb.NextBackOff()
	if d > p.max {
		d = p.max
	}
	// cenkalti randomizes symmetrically around base (±0.5); fold the
	// upper half back down to stay within the spec's [0.5,1.0]*base window.
	if d > base {
		d = base - (d - base)
	}
	if d < base/2 {
		d = base / 2
	}
	return d
}
