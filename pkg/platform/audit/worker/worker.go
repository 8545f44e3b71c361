package worker

import (
	"context"
	"log/slog"

	audit "veristay/pkg/platform/audit"
)

// Worker consumes audit events from the publisher's channel and hands them
// to the sink. Sink failures are logged and the event dropped; audit
// delivery must never propagate as a user-facing error.
type Worker struct {
	sink   audit.Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func New(sink audit.Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"error", err,
					"action", event.Action,
					"subject", event.Subject,
				)
			}
		}
	}
}
