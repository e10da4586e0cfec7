package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/listinginbox/backend/internal/repository"
)

// callPolicy bounds every store round-trip with a timeout and retries only
// transient failures. Constraint violations and missing rows return at once.
type callPolicy struct {
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

func (p callPolicy) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		storeCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; ; attempt++ {
		err := p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !repository.IsTransient(err) {
			return translate(err)
		}
		if attempt >= p.maxRetries {
			return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
		}

		storeCallRetries.WithLabelValues(op).Inc()
		wait := p.backoff << attempt
		slog.Warn("transient store error, retrying", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (p callPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return fn(callCtx)
}

// call is do for store calls that return a value.
func call[T any](ctx context.Context, p callPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
