package executor

import (
	"fmt"
	"time"

	"github.com/juju/retry"

	"github.com/roach88/cfgmigrate/internal/planner"
	"github.com/roach88/cfgmigrate/internal/platform"
)

// RetryPolicy bounds retries of transient write failures.
type RetryPolicy struct {
	// Attempts is the total number of calls, the first one included.
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetry is used for unset policy fields.
var DefaultRetry = RetryPolicy{
	Attempts: 3,
	Delay:    500 * time.Millisecond,
	MaxDelay: 10 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultRetry.Attempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetry.Delay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = max(p.Delay, DefaultRetry.MaxDelay)
	}
	return p
}

// withRetry calls fn until it succeeds, fails with a non-transient error,
// or runs out of attempts. It returns the number of calls made.
func (e *Executor) withRetry(step *planner.Step, fn func() error) (int, error) {
	var (
		attempts int
		lastErr  error
	)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			if err := fn(); err != nil {
				lastErr = err
				return err
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return !platform.IsTransient(err)
		},
		NotifyFunc: func(err error, attempt int) {
			e.logger.Debug("transient write failure",
				"kind", step.Key.Kind,
				"source_id", step.Key.ID,
				"attempt", attempt,
				"error", err)
		},
		Attempts:    e.opts.Retry.Attempts,
		Delay:       e.opts.Retry.Delay,
		MaxDelay:    e.opts.Retry.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       e.clock,
	})
	if retry.IsAttemptsExceeded(err) {
		return attempts, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
	}
	return attempts, err
}
