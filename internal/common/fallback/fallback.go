// Package fallback runs optional operations that have a designated default
// when they fail. A degraded call is logged and counted, never returned.
package fallback

import (
	"context"
	"time"

	"advising-workers/internal/common/logger"
	"advising-workers/internal/common/metrics"
)

// Value returns fn's result, or def when fn fails.
func Value[T any](ctx context.Context, log logger.Logger, op string, def T, fn func(context.Context) (T, error)) T {
	v, err := fn(ctx)
	if err != nil {
		Record(log, op, err)
		return def
	}
	return v
}

// Go runs fn on its own goroutine with a fresh timeout so the caller's
// deadline does not cut it short. The returned channel yields fn's error
// once; callers are free to ignore it.
func Go(log logger.Logger, op string, timeout time.Duration, fn func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := fn(ctx)
		if err != nil {
			Record(log, op, err)
		}
		done <- err
		close(done)
	}()
	return done
}

// Record counts and logs a degraded operation.
func Record(log logger.Logger, op string, err error) {
	metrics.Degradations.WithLabelValues(op).Inc()
	log.Warn("optional operation failed, using default", map[string]interface{}{
		"operation": op,
		"error":     err.Error(),
	})
}
