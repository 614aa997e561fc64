package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do("op", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do("op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	sentinel := errors.New("still down")
	calls := 0
	err := fastPolicy(2).Do("list bucket", func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "list bucket failed after 2 attempts")
}

func TestRetryZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do("op", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffCappedAtMaxDelay(t *testing.T) {
	p := RetryPolicy{Attempts: 5, BaseDelay: time.Second, MaxDelay: 2 * time.Second}
	for i := 0; i < 5; i++ {
		d := p.backoff(i)
		assert.LessOrEqual(t, d, 2*time.Second+100*time.Millisecond, "attempt %d", i)
	}
}
