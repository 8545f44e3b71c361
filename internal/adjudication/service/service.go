package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"veristay/internal/notify"
	"veristay/internal/override/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/audit"
	"veristay/pkg/platform/sentinel"
	txcontext "veristay/pkg/platform/tx"
	"veristay/pkg/requestcontext"
)

// Action is an adjudication verdict.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDeny    Action = "deny"
)

// OverrideStore is the slice of the override store adjudication needs.
type OverrideStore interface {
	FindRequest(ctx context.Context, overrideID id.OverrideID) (*models.OverrideRequest, error)
	ExecuteRequest(ctx context.Context, overrideID id.OverrideID, validate func(*models.OverrideRequest) error, mutate func(*models.OverrideRequest)) (*models.OverrideRequest, error)
}

// PropertyDeleter performs the deletion an approved PROPERTY_DELETION
// request authorizes.
type PropertyDeleter interface {
	Delete(ctx context.Context, propertyID id.PropertyID) error
}

// SnapshotDeleter performs the removal an approved SNAPSHOT_DELETION
// request authorizes.
type SnapshotDeleter interface {
	DeleteSnapshot(ctx context.Context, snapshotID id.SnapshotID) error
}

// AuditPublisher records every terminal decision.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service is the admin adjudication surface for override requests.
type Service struct {
	store      OverrideStore
	properties PropertyDeleter
	snapshots  SnapshotDeleter
	notifier   notify.Notifier
	auditor    AuditPublisher
	tx         *txcontext.Runner
	logger     *slog.Logger
}

// New constructs the service. A nil tx runner means the store cannot span
// the status flip and its side effect in one transaction; approval side
// effects then compensate by reverting the request on failure.
func New(store OverrideStore, properties PropertyDeleter, snapshots SnapshotDeleter, notifier notify.Notifier, auditor AuditPublisher, tx *txcontext.Runner, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		properties: properties,
		snapshots:  snapshots,
		notifier:   notifier,
		auditor:    auditor,
		tx:         tx,
		logger:     logger,
	}
}

// Decide approves or denies a pending override request. Notes are
// mandatory: a terminal decision with no reasoning is not reviewable.
// Deciding a non-PENDING request conflicts, so two admins racing on the
// same request produce exactly one outcome.
func (s *Service) Decide(ctx context.Context, overrideID id.OverrideID, action Action, adminNotes string) (*models.OverrideRequest, error) {
	if action != ActionApprove && action != ActionDeny {
		return nil, dErrors.New(dErrors.CodeValidation, "action must be approve or deny").
			WithDetail("action", string(action))
	}
	if strings.TrimSpace(adminNotes) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "admin notes are required")
	}

	adminID := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	status := models.StatusDenied
	if action == ActionApprove {
		status = models.StatusApproved
	}

	flip := func(ctx context.Context) (*models.OverrideRequest, error) {
		return s.store.ExecuteRequest(ctx, overrideID,
			func(cur *models.OverrideRequest) error {
				if !cur.Pending() {
					return dErrors.New(dErrors.CodeConflict, "override request already decided").
						WithDetail("status", string(cur.Status))
				}
				return nil
			},
			func(cur *models.OverrideRequest) {
				cur.Status = status
				cur.AdminNotes = adminNotes
				cur.ReviewerID = &adminID
				cur.ReviewedAt = &now
			})
	}

	var decided *models.OverrideRequest
	var err error
	if status == models.StatusApproved && s.tx.Enabled() {
		// Single transaction: the flip and the approval's side effect
		// commit or roll back together.
		err = s.tx.Run(ctx, func(ctx context.Context) error {
			decided, err = flip(ctx)
			if err != nil {
				return err
			}
			return s.applyApproval(ctx, decided)
		})
	} else {
		decided, err = flip(ctx)
		if err == nil && status == models.StatusApproved {
			if applyErr := s.applyApproval(ctx, decided); applyErr != nil {
				return nil, s.compensate(ctx, decided, adminNotes, applyErr)
			}
		}
	}
	if err != nil {
		return nil, s.translate(err)
	}

	s.auditor.Emit(ctx, audit.Event{
		ActorID: adminID,
		Action:  auditAction(status),
		Subject: decided.ID.String(),
		Notes:   adminNotes,
	})
	s.logger.InfoContext(ctx, "override request decided",
		"override_id", overrideID,
		"status", status,
		"admin_id", adminID,
		"request_id", requestcontext.RequestID(ctx),
	)

	// Fire and forget; the requester hears about it if delivery works.
	if err := s.notifier.NotifyDecision(ctx, decided); err != nil {
		s.logger.WarnContext(ctx, "decision notification failed",
			"error", err,
			"override_id", overrideID,
		)
	}
	return decided, nil
}

// applyApproval runs the side effect an approval authorizes. Only the
// deletion types carry one; other types gate behavior at their call sites
// by observing APPROVED.
func (s *Service) applyApproval(ctx context.Context, req *models.OverrideRequest) error {
	switch req.Type {
	case models.TypePropertyDeletion:
		propertyID, ok := parsePropertyTarget(req.TargetKey)
		if !ok {
			return dErrors.New(dErrors.CodeInvalidState, "property deletion request has no property target").
				WithDetail("target_key", req.TargetKey)
		}
		return s.properties.Delete(ctx, propertyID)
	case models.TypeSnapshotDeletion:
		snapshotID, ok := parseSnapshotTarget(req.TargetKey)
		if !ok {
			return dErrors.New(dErrors.CodeInvalidState, "snapshot deletion request has no snapshot target").
				WithDetail("target_key", req.TargetKey)
		}
		return s.snapshots.DeleteSnapshot(ctx, snapshotID)
	default:
		return nil
	}
}

// compensate reverts an approved request to PENDING after its side effect
// failed outside a transaction, annotating the notes so the next reviewer
// sees what happened. The caller is told to retry.
func (s *Service) compensate(ctx context.Context, req *models.OverrideRequest, adminNotes string, cause error) error {
	annotated := adminNotes + " [approval side effect failed: " + cause.Error() + "]"
	_, revertErr := s.store.ExecuteRequest(ctx, req.ID, nil, func(cur *models.OverrideRequest) {
		cur.Status = models.StatusPending
		cur.AdminNotes = annotated
		cur.ReviewerID = nil
		cur.ReviewedAt = nil
	})
	if revertErr != nil {
		s.logger.ErrorContext(ctx, "failed to revert override request after side effect failure",
			"error", revertErr,
			"override_id", req.ID,
		)
	}
	return dErrors.Wrap(cause, dErrors.CodeUnavailable, "approval side effect failed; request reverted to pending, retry")
}

func (s *Service) translate(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "override request not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decide override request")
}

func auditAction(status models.RequestStatus) string {
	if status == models.StatusApproved {
		return audit.ActionOverrideApproved
	}
	return audit.ActionOverrideDenied
}

func parsePropertyTarget(targetKey string) (id.PropertyID, bool) {
	raw, ok := strings.CutPrefix(targetKey, "property:")
	if !ok {
		return id.PropertyID{}, false
	}
	propertyID, err := id.ParsePropertyID(raw)
	if err != nil {
		return id.PropertyID{}, false
	}
	return propertyID, true
}

func parseSnapshotTarget(targetKey string) (id.SnapshotID, bool) {
	raw, ok := strings.CutPrefix(targetKey, "snapshot:")
	if !ok {
		return id.SnapshotID{}, false
	}
	snapshotID, err := id.ParseSnapshotID(raw)
	if err != nil {
		return id.SnapshotID{}, false
	}
	return snapshotID, true
}
