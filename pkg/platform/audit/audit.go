// Package audit records who decided what. Adjudication decisions and
// discrepancy resolutions emit events here; delivery is asynchronous and
// never blocks or fails the decision that produced the event.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "veristay/pkg/domain"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   id.UserID `json:"actor_id"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject"`
	Notes     string    `json:"notes,omitempty"`
}

// Actions emitted by the core.
const (
	ActionOverrideApproved    = "override.approved"
	ActionOverrideDenied      = "override.denied"
	ActionDiscrepancyResolved = "discrepancy.resolved"
	ActionDiscrepancyWaived   = "discrepancy.waived"
)

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher buffers events onto a channel drained by the Worker. Emit never
// blocks the caller: when the buffer is full the event is dropped and
// logged, matching the fire-and-forget contract.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Inbox exposes the event channel for the worker.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }

// Emit queues an audit event. Assigns ID and timestamp when absent.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"action", event.Action,
			"subject", event.Subject,
		)
	}
}
