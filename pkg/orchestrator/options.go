package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// Options controls the retry protocol of a run.
type Options struct {
	// MaxRetries is the number of whole-batch attempts, including the first.
	MaxRetries int

	// RetryIndividually enables the per-company phase once batch attempts
	// are exhausted with failures left.
	RetryIndividually bool

	// BatchDelay is the fixed wait between batch attempts.
	BatchDelay time.Duration

	// IndividualDelay is the fixed wait between per-company retries.
	IndividualDelay time.Duration

	// StableOrder re-sorts the final lists by roster position. Otherwise
	// they keep completion order.
	StableOrder bool

	// Sleep waits for d or until ctx is done. Defaults to a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the default retry protocol.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        6,
		RetryIndividually: true,
		BatchDelay:        2 * time.Second,
		IndividualDelay:   1 * time.Second,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.MaxRetries < 1 {
		return fmt.Errorf("max retries must be >= 1 (got %d)", o.MaxRetries)
	}
	if o.BatchDelay < 0 || o.IndividualDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	return nil
}

// sleep waits with context cancellation support.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
