package failover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prilive-com/enflux/source"
)

func TestBackoffDelay_Exponential(t *testing.T) {
	policy := source.RetryPolicy{
		Strategy:     source.BackoffExponential,
		InitialDelay: time.Second,
	}

	assert.Equal(t, time.Second, backoffDelay(policy, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(policy, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(policy, 3))
}

func TestBackoffDelay_Linear(t *testing.T) {
	policy := source.RetryPolicy{
		Strategy:     source.BackoffLinear,
		InitialDelay: time.Second,
	}

	assert.Equal(t, time.Second, backoffDelay(policy, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(policy, 2))
	assert.Equal(t, 3*time.Second, backoffDelay(policy, 3))
}

func TestBackoffDelay_Fixed(t *testing.T) {
	policy := source.RetryPolicy{
		Strategy:     source.BackoffFixed,
		InitialDelay: 500 * time.Millisecond,
	}

	for attempt := 1; attempt <= 4; attempt++ {
		assert.Equal(t, 500*time.Millisecond, backoffDelay(policy, attempt))
	}
}

func TestBackoffDelay_CappedAtMaxDelay(t *testing.T) {
	policy := source.RetryPolicy{
		Strategy:     source.BackoffExponential,
		InitialDelay: time.Second,
		MaxDelay:     3 * time.Second,
	}

	assert.Equal(t, 3*time.Second, backoffDelay(policy, 5))
}

func TestBackoffDelay_JitterStaysInBand(t *testing.T) {
	policy := source.RetryPolicy{
		Strategy:     source.BackoffFixed,
		InitialDelay: time.Second,
		Jitter:       true,
	}

	for range 50 {
		d := backoffDelay(policy, 1)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
