package sim

import (
	"context"
	"log/slog"
	"time"
)

// WaitForSimulator calls dial until it succeeds, sleeping retry between
// attempts. The simulator may take minutes to finish starting, so this only
// gives up when ctx ends.
func WaitForSimulator[T any](ctx context.Context, dial func(context.Context) (T, error), retry time.Duration) (T, error) {
	if retry <= 0 {
		retry = time.Second
	}

	for attempt := 1; ; attempt++ {
		s, err := dial(ctx)
		if err == nil {
			slog.Info("simulator started", "attempts", attempt)
			return s, nil
		}

		if attempt == 1 {
			slog.Info("simulator not started, waiting", "retry", retry, "error", err)
		} else {
			slog.Debug("simulator still not started", "attempt", attempt, "error", err)
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(retry):
		}
	}
}
