// Package retry re-runs infrastructure calls that fail with transient errors.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/faceauth/internal/logging"
)

// Policy bounds the number of attempts and the exponential backoff between them.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retryable reports whether a failure may be retried. Nil means IsTransient.
	Retryable func(error) bool
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

// delay returns the wait before attempt+1, doubling from InitialBackoff and
// capped at MaxBackoff.
func (p Policy) delay(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do calls fn until it succeeds, fails with an error the policy does not
// retry, or the attempts run out. Failures are returned as
// *logging.OperationError.
func Do(ctx context.Context, policy Policy, logger *zap.Logger, operation, requestID string, fn func() error) error {
	opLogger := logging.WithOperation(logger, operation, requestID)
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				opLogger.Info("operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if attempt >= policy.Attempts || !policy.retryable(err) {
			opLogger.Error("operation failed", zap.Error(err), zap.Int("attempt", attempt))
			return logging.NewOperationError(operation, requestID, err)
		}

		wait := policy.delay(attempt)
		opLogger.Warn("retrying operation", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return logging.NewOperationError(operation, requestID, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// IsTransient reports whether err is a timeout or a temporary network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
