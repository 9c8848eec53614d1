package broker

import (
	"context"
	rand "math/rand/v2"
	"sync"
	"time"
)

// jitterBackoff computes decorrelated jitter backoff with a cap.
// See: https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
//
//	next = min(cap, base + rand(prev*multiplier - base))
//
// Behavior:
//   - If prev <= 0, start from base
//   - Multiplier < 1.0 falls back to 1.0 (no growth)
//   - Cap below base returns cap
func jitterBackoff(prev, base time.Duration, mult float64, capDur time.Duration, rng *rand.Rand) time.Duration {
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
	maxDuration := time.Duration(float64(prev)*mult) - base
	if maxDuration <= 0 {
		maxDuration = base
	}
	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(int64(maxDuration))
	} else {
		jitter = rand.Int64N(int64(maxDuration)) //nolint:gosec // non-crypto backoff jitter
	}
	next := base + time.Duration(jitter)
	if capDur > 0 && next > capDur {
		return capDur
	}

	return next
}

// newRetryRNG returns a deterministic RNG only when a non-zero seed is provided.
// When seed == 0 it returns nil so callers use the package-level PRNG instead.
//
//nolint:gosec
func newRetryRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)
	s2 := s1 ^ 0x9e3779b97f4a7c15

	return rand.New(rand.NewPCG(s1, s2))
}

// backoffPolicy produces jittered delays shared by publish retries and
// iterator restarts. Safe for concurrent use.
type backoffPolicy struct {
	base   time.Duration
	mult   float64
	capDur time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func newBackoffPolicy(base time.Duration, mult float64, capDur time.Duration, seed int64) *backoffPolicy {
	return &backoffPolicy{base: base, mult: mult, capDur: capDur, rng: newRetryRNG(seed)}
}

// next returns the delay following prev.
func (p *backoffPolicy) next(prev time.Duration) time.Duration {
	if p.rng == nil {
		return jitterBackoff(prev, p.base, p.mult, p.capDur, nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return jitterBackoff(prev, p.base, p.mult, p.capDur, p.rng)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
