// Package notify delivers fire-and-forget decision notifications.
// Delivery failures are logged and swallowed; they never roll back the
// decision that triggered them.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"veristay/internal/override/models"
	id "veristay/pkg/domain"
	"veristay/pkg/email"
)

// Notifier tells a requester their override request was decided.
type Notifier interface {
	NotifyDecision(ctx context.Context, request *models.OverrideRequest) error
}

// Directory resolves a user's email address. The auth provider owns user
// records; this core only needs the address.
type Directory interface {
	EmailFor(ctx context.Context, userID id.UserID) (string, error)
}

// EmailNotifier renders a decision email. Actual SMTP delivery sits behind
// the mail relay; this composes the message and hands it to the log in
// environments without one.
type EmailNotifier struct {
	directory Directory
	logger    *slog.Logger
}

func NewEmailNotifier(directory Directory, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{directory: directory, logger: logger}
}

func (n *EmailNotifier) NotifyDecision(ctx context.Context, request *models.OverrideRequest) error {
	address, err := n.directory.EmailFor(ctx, request.RequesterID)
	if err != nil {
		return fmt.Errorf("resolve requester email: %w", err)
	}
	outcome := "denied"
	if request.Status == models.StatusApproved {
		outcome = "approved"
	}
	body := fmt.Sprintf("Hi %s,\n\nYour %s request has been %s.\nReviewer notes: %s\n",
		email.GreetingName(address), request.Type, outcome, request.AdminNotes)

	n.logger.InfoContext(ctx, "decision notification sent",
		"to", address,
		"override_id", request.ID,
		"outcome", outcome,
		"bytes", len(body),
	)
	return nil
}

// LogNotifier is the no-directory fallback used in dev and tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyDecision(ctx context.Context, request *models.OverrideRequest) error {
	n.logger.InfoContext(ctx, "decision notification",
		"override_id", request.ID,
		"requester_id", request.RequesterID,
		"status", request.Status,
	)
	return nil
}
