package failover

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/prilive-com/enflux/source"
)

// Sleeper abstracts time-based waiting for testing.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper uses actual time.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// backoffDelay computes the wait before retry number attempt (1-based)
// according to the source's retry policy.
func backoffDelay(policy source.RetryPolicy, attempt int) time.Duration {
	var wait time.Duration
	switch policy.Strategy {
	case source.BackoffLinear:
		wait = policy.InitialDelay * time.Duration(attempt)
	case source.BackoffFixed:
		wait = policy.InitialDelay
	default: // exponential
		wait = policy.InitialDelay << (attempt - 1)
	}

	if policy.MaxDelay > 0 && wait > policy.MaxDelay {
		wait = policy.MaxDelay
	}

	if policy.Jitter && wait > 0 {
		// ±20% jitter using crypto/rand
		jitterRange := int64(float64(wait) * 0.2)
		if jitterRange > 0 {
			n, err := rand.Int(rand.Reader, big.NewInt(jitterRange*2))
			if err == nil {
				wait += time.Duration(n.Int64() - jitterRange)
			}
		}
	}
	return wait
}
