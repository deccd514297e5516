// Package backoff provides jittered retry delays and a context-aware sleep.
package backoff

import (
	"context"
	rand "math/rand/v2"
	"time"
)

// Jitter computes decorrelated jitter delays ("Full Jitter" variant) with a cap.
// See: https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
//
// Each call to Next grows the previous delay by Multiplier and draws the next
// delay uniformly from [Base, prev*Multiplier). Reset returns to Base. A Jitter
// is not safe for concurrent use; each retry loop owns one.
type Jitter struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration

	rng  *rand.Rand
	prev time.Duration
}

// New creates a jitter sequence.
//
// Parameters:
//   - base: First delay (50ms when <= 0)
//   - mult: Growth factor (values below 1.0 mean no growth)
//   - capDur: Upper bound; zero disables the cap
//   - seed: Non-zero seed makes the sequence deterministic for tests
func New(base time.Duration, mult float64, capDur time.Duration, seed int64) *Jitter {
	return &Jitter{Base: base, Multiplier: mult, Cap: capDur, rng: newRNG(seed)}
}

// Next returns the next delay in the sequence.
func (j *Jitter) Next() time.Duration {
	j.prev = next(j.prev, j.Base, j.Multiplier, j.Cap, j.rng)
	return j.prev
}

// Reset restarts the sequence from Base.
func (j *Jitter) Reset() {
	j.prev = 0
}

func next(prev, base time.Duration, mult float64, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if capDur > 0 && capDur < base {
		return capDur
	}
	if prev <= 0 {
		return base
	}

	span := time.Duration(float64(prev)*mult) - base
	if span <= 0 {
		span = base
	}

	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(int64(span))
	} else {
		jitter = rand.Int64N(int64(span)) //nolint:gosec // non-crypto backoff jitter
	}

	d := base + time.Duration(jitter)
	if capDur > 0 && d > capDur {
		return capDur
	}

	return d
}

// newRNG returns a deterministic RNG only when a non-zero seed is provided.
//
//nolint:gosec
func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)
	s2 := s1 ^ 0x9e3779b97f4a7c15

	return rand.New(rand.NewPCG(s1, s2))
}

// Sleep pauses for d or until ctx is done, whichever comes first.
//
// Returns:
//   - error: ctx.Err() when the context ended the sleep, nil otherwise
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
