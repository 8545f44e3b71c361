package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	propmodels "veristay/internal/property/models"
	resmodels "veristay/internal/resident/models"
	"veristay/internal/verification/metrics"
	"veristay/internal/verification/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/sentinel"
	"veristay/pkg/requestcontext"
)

// Store is the persistence surface for verifications.
type Store interface {
	Create(ctx context.Context, v *models.IncomeVerification) error
	Find(ctx context.Context, verificationID id.VerificationID) (*models.IncomeVerification, error)
	ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*models.IncomeVerification, error)
	Delete(ctx context.Context, verificationID id.VerificationID) error
	Execute(ctx context.Context, verificationID id.VerificationID, validate func(*models.IncomeVerification) error, mutate func(*models.IncomeVerification)) (*models.IncomeVerification, error)
}

// ResidentReader supplies the lease's resident set for aggregate checks.
type ResidentReader interface {
	ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*resmodels.Resident, error)
}

// DocumentCounter reports how many documents hang off a verification.
// Cancellation is gated on zero.
type DocumentCounter interface {
	CountByVerification(ctx context.Context, verificationID id.VerificationID) (int, error)
}

// LeaseAuthorizer resolves lease ownership and enforces the caller's access.
type LeaseAuthorizer interface {
	AuthorizeLease(ctx context.Context, leaseID id.LeaseID) (*propmodels.LeaseRef, error)
}

// DiscrepancyChecker compares a lease's declared income against its
// finalized total and raises an override request when they diverge.
type DiscrepancyChecker interface {
	CheckIncomeDiscrepancy(ctx context.Context, leaseID id.LeaseID) error
}

// Service drives the verification period state machine.
type Service struct {
	store         Store
	residents     ResidentReader
	documents     DocumentCounter
	leases        LeaseAuthorizer
	discrepancies DiscrepancyChecker
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(store Store, residents ResidentReader, documents DocumentCounter, leases LeaseAuthorizer, discrepancies DiscrepancyChecker, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		residents:     residents,
		documents:     documents,
		leases:        leases,
		discrepancies: discrepancies,
		metrics:       m,
		logger:        logger,
	}
}

// CreateParams are the caller-supplied attributes of a new verification
// period.
type CreateParams struct {
	Reason      models.Reason
	PeriodStart time.Time
	PeriodEnd   time.Time
	DueDate     time.Time
}

// Create opens a verification period for a lease. At most one verification
// per unit may be IN_PROGRESS, counted across every lease on that unit.
func (s *Service) Create(ctx context.Context, leaseID id.LeaseID, params CreateParams) (*models.IncomeVerification, error) {
	if !params.Reason.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown verification reason").
			WithDetail("reason", string(params.Reason))
	}
	if params.PeriodEnd.Before(params.PeriodStart) {
		return nil, dErrors.New(dErrors.CodeValidation, "verification period ends before it starts")
	}
	ref, err := s.leases.AuthorizeLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}

	v := &models.IncomeVerification{
		ID:          id.NewVerificationID(),
		LeaseID:     leaseID,
		UnitID:      ref.UnitID,
		PropertyID:  ref.PropertyID,
		Status:      models.StatusInProgress,
		Reason:      params.Reason,
		PeriodStart: params.PeriodStart,
		PeriodEnd:   params.PeriodEnd,
		DueDate:     params.DueDate,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, v); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "unit already has an in-progress verification")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification")
	}

	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	s.logger.InfoContext(ctx, "verification created",
		"verification_id", v.ID,
		"lease_id", leaseID,
		"unit_id", ref.UnitID,
		"reason", params.Reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	return v, nil
}

// Get returns the verification after an ownership check.
func (s *Service) Get(ctx context.Context, verificationID id.VerificationID) (*models.IncomeVerification, error) {
	v, _, err := s.authorize(ctx, verificationID)
	return v, err
}

// ListByLease returns the lease's verifications, oldest first.
func (s *Service) ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*models.IncomeVerification, error) {
	if _, err := s.leases.AuthorizeLease(ctx, leaseID); err != nil {
		return nil, err
	}
	out, err := s.store.ListByLease(ctx, leaseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	return out, nil
}

// Cancel deletes an IN_PROGRESS verification. Refused, not ignored, once
// any document exists against it; the caller must remove documents first.
func (s *Service) Cancel(ctx context.Context, verificationID id.VerificationID) error {
	v, _, err := s.authorize(ctx, verificationID)
	if err != nil {
		return err
	}
	if v.Status != models.StatusInProgress {
		return dErrors.New(dErrors.CodeInvalidState, "only in-progress verifications can be cancelled")
	}
	count, err := s.documents.CountByVerification(ctx, verificationID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count documents")
	}
	if count > 0 {
		return dErrors.New(dErrors.CodeConflict, "verification has documents; remove them first").
			WithDetail("document_count", count)
	}
	if err := s.store.Delete(ctx, verificationID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel verification")
	}

	s.logger.InfoContext(ctx, "verification cancelled",
		"verification_id", verificationID,
		"lease_id", v.LeaseID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Finalize moves IN_PROGRESS to FINALIZED once every resident on the lease
// is settled, capturing the household income sum. No-income residents
// contribute zero.
func (s *Service) Finalize(ctx context.Context, verificationID id.VerificationID) (*models.IncomeVerification, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveFinalize(start)
		}
	}()

	v, _, err := s.authorize(ctx, verificationID)
	if err != nil {
		return nil, err
	}

	residents, err := s.residents.ListByLease(ctx, v.LeaseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list residents")
	}
	settled, total := settlementCounts(residents)
	if settled < total {
		return nil, dErrors.New(dErrors.CodeInvalidState, "not all residents are settled").
			WithDetail("settled_count", settled).
			WithDetail("total_count", total)
	}
	income := householdIncome(residents)

	now := requestcontext.Now(ctx)
	finalized, err := s.store.Execute(ctx, verificationID,
		func(cur *models.IncomeVerification) error {
			if cur.Status != models.StatusInProgress {
				return dErrors.New(dErrors.CodeInvalidState, "verification is not in progress")
			}
			return nil
		},
		func(cur *models.IncomeVerification) {
			cur.Status = models.StatusFinalized
			cur.CalculatedVerifiedIncome = income
			cur.FinalizedAt = &now
		})
	if err != nil {
		return nil, s.translate(err, "failed to finalize verification")
	}

	if s.metrics != nil {
		s.metrics.IncrementFinalized()
	}
	s.logger.InfoContext(ctx, "verification finalized",
		"verification_id", verificationID,
		"lease_id", v.LeaseID,
		"calculated_verified_income", income,
		"request_id", requestcontext.RequestID(ctx),
	)

	// The finalization stands regardless of the discrepancy outcome; a
	// failed check is logged and retried on the next ingest.
	if err := s.discrepancies.CheckIncomeDiscrepancy(ctx, v.LeaseID); err != nil {
		s.logger.ErrorContext(ctx, "income discrepancy check failed",
			"error", err,
			"lease_id", v.LeaseID,
		)
	}
	return finalized, nil
}

// ReevaluateLease recomputes the lease's verification aggregate after a
// residents-affecting mutation. Any unsettled resident reverts a FINALIZED
// verification to IN_PROGRESS and clears its totals; with all residents
// settled the total is recomputed in place. Safe to run repeatedly.
func (s *Service) ReevaluateLease(ctx context.Context, leaseID id.LeaseID) error {
	verifications, err := s.store.ListByLease(ctx, leaseID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	residents, err := s.residents.ListByLease(ctx, leaseID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list residents")
	}
	settled, total := settlementCounts(residents)
	allSettled := total > 0 && settled == total
	income := householdIncome(residents)

	for _, v := range verifications {
		if v.Status != models.StatusFinalized {
			continue
		}
		reverted := false
		_, err := s.store.Execute(ctx, v.ID, nil, func(cur *models.IncomeVerification) {
			if cur.Status != models.StatusFinalized {
				return
			}
			if allSettled {
				cur.CalculatedVerifiedIncome = income
				return
			}
			cur.Status = models.StatusInProgress
			cur.CalculatedVerifiedIncome = 0
			cur.FinalizedAt = nil
			reverted = true
		})
		if err != nil {
			return s.translate(err, "failed to reevaluate verification")
		}
		if reverted {
			if s.metrics != nil {
				s.metrics.IncrementReverted()
			}
			s.logger.InfoContext(ctx, "verification reverted to in-progress",
				"verification_id", v.ID,
				"lease_id", leaseID,
				"settled_count", settled,
				"total_count", total,
			)
		}
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, verificationID id.VerificationID) (*models.IncomeVerification, *propmodels.LeaseRef, error) {
	v, err := s.store.Find(ctx, verificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "verification not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	ref, err := s.leases.AuthorizeLease(ctx, v.LeaseID)
	if err != nil {
		return nil, nil, err
	}
	return v, ref, nil
}

func (s *Service) translate(err error, fallback string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "verification not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "unit already has an in-progress verification")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, fallback)
}

func settlementCounts(residents []*resmodels.Resident) (settled, total int) {
	for _, r := range residents {
		if r.Settled() {
			settled++
		}
	}
	return settled, len(residents)
}

// householdIncome sums verified income across settled residents; no-income
// residents count as zero.
func householdIncome(residents []*resmodels.Resident) id.Cents {
	var sum id.Cents
	for _, r := range residents {
		if r.IncomeFinalized {
			sum += r.VerifiedIncome
		}
	}
	return sum
}
