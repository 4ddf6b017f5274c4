package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type RetryPolicy struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	ActivityTimeout time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable marks err as an invariant violation: the engine gives up on the
// activity immediately and a workflow returning it is closed as FAILED.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	if IsNonRetryable(err) {
		return err
	}
	return &nonRetryableError{err: err}
}

func IsNonRetryable(err error) bool {
	var target *nonRetryableError
	return errors.As(err, &target)
}

func retry[T any](c *Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := c.engine.policy
	backoff := policy.InitialBackoff

	var zero T
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		out, err := fn(c.ctx)
		if err == nil {
			return out, nil
		}
		if IsNonRetryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}

		c.engine.metrics.RecordActivityRetry(name)
		slog.Warn("activity attempt failed, retrying",
			"key", c.run.key,
			"activity", name,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			return zero, c.ctx.Err()
		}

		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	return zero, fmt.Errorf("activity %s failed after %d attempts: %w", name, policy.MaxAttempts, lastErr)
}
