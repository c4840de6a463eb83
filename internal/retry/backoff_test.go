package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(attempts int) *Backoff {
	return NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
	})
}

func TestBackoff_SuccessFirstAttempt(t *testing.T) {
	attempts := 0
	err := fastBackoff(3).Retry(context.Background(), func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := fastBackoff(3).Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBackoff_ReturnsLastError(t *testing.T) {
	attempts := 0
	err := fastBackoff(4).Retry(context.Background(), func() error {
		attempts++
		return errors.New("still failing")
	})

	require.EqualError(t, err, "still failing")
	assert.Equal(t, 4, attempts)
}

func TestBackoff_PredicateStopsEarly(t *testing.T) {
	permanent := errors.New("no such table")
	attempts := 0
	err := fastBackoff(5).RetryWithPredicate(context.Background(), func() error {
		attempts++
		return permanent
	}, func(err error) bool { return false })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastBackoff(3).Retry(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff_DelayGrowsAndCaps(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     350 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  5,
	})

	assert.Equal(t, 100*time.Millisecond, b.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, b.NextDelay(2))
	assert.Equal(t, 350*time.Millisecond, b.NextDelay(3))
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       true,
	}
	b := NewBackoff(cfg)

	for i := 0; i < 50; i++ {
		d := b.NextDelay(1)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestWait(t *testing.T) {
	start := time.Now()
	require.NoError(t, Wait(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)

	assert.NoError(t, Wait(context.Background(), 0))
}
