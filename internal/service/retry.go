package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pixelgram/internal/middleware"
	"pixelgram/internal/models"
	"pixelgram/internal/observability"

	"github.com/cenkalti/backoff/v5"
)

// StoreOptions bounds every Entity Store call a service makes.
type StoreOptions struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// RetryAttempts is the total number of attempts for retried mutations.
	RetryAttempts int
	// InitialBackoff is the first wait between attempts.
	InitialBackoff time.Duration
}

// DefaultStoreOptions mirrors the configuration defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{Timeout: 5 * time.Second, RetryAttempts: 3, InitialBackoff: 50 * time.Millisecond}
}

func (o StoreOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 5 * time.Second
	}
	return o.Timeout
}

func (o StoreOptions) attempts() uint {
	if o.RetryAttempts <= 0 {
		return 1
	}
	return uint(o.RetryAttempts)
}

func (o StoreOptions) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.InitialBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = 50 * time.Millisecond
	}
	b.MaxInterval = 2 * time.Second
	return b
}

// once runs fn a single time under the store timeout.
func (o StoreOptions) once(ctx context.Context, fn func(context.Context) error) error {
	return o.attempt(ctx, fn)
}

// retry runs fn under the store timeout, re-running it from the start while
// it fails with a retryable error. fn must be safe to repeat as a whole,
// which a single transaction is.
func (o StoreOptions) retry(ctx context.Context, operation string, fn func(context.Context) error) error {
	op := func() (struct{}, error) {
		err := o.attempt(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if models.IsRetryable(err) && ctx.Err() == nil {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(o.newBackOff()),
		backoff.WithMaxTries(o.attempts()),
		backoff.WithNotify(func(err error, wait time.Duration) {
			observability.StoreRetries.WithLabelValues(operation).Inc()
			middleware.Logger.WarnContext(ctx, "retrying store operation",
				slog.String("operation", operation),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()))
		}),
	)
	if err == nil {
		return nil
	}
	return models.ClassifyStoreError(err, operation, nil)
}

// attempt bounds one call. A deadline hit while the store reports something
// unclassified still surfaces as retryable.
func (o StoreOptions) attempt(ctx context.Context, fn func(context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	err := fn(actx)
	if err == nil {
		return nil
	}
	if actx.Err() != nil && !isDomainError(err) {
		return models.NewStoreUnavailableError(errors.Join(actx.Err(), err))
	}
	return err
}

// isDomainError reports whether err already carries a caller-facing kind
// other than Internal.
func isDomainError(err error) bool {
	var appErr *models.AppError
	return errors.As(err, &appErr) && appErr.Code != models.CodeInternal
}
