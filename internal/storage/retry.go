package storage

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/ml8s/training-harness/internal/observability"
)

// RetryPolicy bounds retries for remote calls: exponential backoff from
// BaseDelay, capped at MaxDelay, with a small random jitter so concurrent
// invocations do not retry in lockstep.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy matches the fingerprinting defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Do runs fn up to Attempts times, sleeping between failures. After the
// final failure the last error propagates, wrapped with the operation
// name; a file is never silently skipped.
func (p RetryPolicy) Do(op string, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := fn(); err != nil {
			last = err
			if i == 0 {
				observability.StorageRetriesTotal.Inc()
			}
			if i < attempts-1 {
				time.Sleep(p.backoff(i))
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, last)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
	return d + jitter
}
