package linesource

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/roach88/simbridge/internal/model"
)

// Queue is the consuming side of a pump.
type Queue interface {
	Enqueue(model.Token) bool
	Close()
}

// Pump reads tokens from src into q until src ends, ctx is cancelled, or q
// stops accepting tokens. It closes q on return so the consumer can tell the
// channel is gone.
//
// Malformed lines are logged and skipped. If src is an io.Closer it is closed
// when ctx ends to unblock a pending read.
//
// Returns nil on clean EOF, ctx.Err() on cancellation, otherwise the read error.
func Pump(ctx context.Context, name string, src io.Reader, q Queue) error {
	defer q.Close()

	if c, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() {
			if err := c.Close(); err != nil {
				slog.Debug("close line source", "source", name, "error", err)
			}
		})
		defer stop()
	}

	slog.Info("line source started", "source", name)
	r := NewReader(src)
	for {
		tok, err := r.Next()
		if err != nil {
			if errors.Is(err, ErrMalformedLine) {
				slog.Warn("skipping malformed line", "source", name, "error", err)
				continue
			}
			if ctx.Err() != nil {
				slog.Info("line source stopped", "source", name)
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				slog.Warn("line source closed", "source", name, "lines", r.Line())
				return nil
			}
			slog.Error("line source failed", "source", name, "error", err)
			return err
		}

		if !q.Enqueue(tok) {
			slog.Info("queue closed, stopping line source", "source", name)
			return nil
		}
	}
}
