// Package retry describes bounded retry schedules. The package only computes
// delays; sleeping is left to the caller so that time can be faked in tests.
package retry

import "time"

// Policy is a bounded exponential (or fixed, with Multiplier 1) backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration
	// Multiplier scales the delay after each further failure.
	Multiplier float64
	// MaxDelay caps any single delay. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used for version publication.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
	}
}

// Normalize fills zero fields with usable values.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	return p
}

// Delay returns the wait before attempt number next (1-based). The first
// attempt never waits.
func (p Policy) Delay(next int) time.Duration {
	p = p.Normalize()
	if next <= 1 {
		return 0
	}
	d := float64(p.InitialDelay)
	for i := 2; i < next; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// ShouldRetry reports whether another attempt is allowed after attempt
// number done has failed.
func (p Policy) ShouldRetry(done int) bool {
	return done < p.Normalize().MaxAttempts
}
