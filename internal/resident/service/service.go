package service

import (
	"context"
	"errors"
	"log/slog"

	docmodels "veristay/internal/document/models"
	propmodels "veristay/internal/property/models"
	"veristay/internal/resident/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/sentinel"
	"veristay/pkg/requestcontext"
)

// Store is the persistence surface for residents.
type Store interface {
	Create(ctx context.Context, r *models.Resident) error
	Find(ctx context.Context, residentID id.ResidentID) (*models.Resident, error)
	ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*models.Resident, error)
	Execute(ctx context.Context, residentID id.ResidentID, validate func(*models.Resident) error, mutate func(*models.Resident)) (*models.Resident, error)
}

// DocumentReader exposes the COMPLETED document set income recomputation
// runs over.
type DocumentReader interface {
	ListCompletedByResident(ctx context.Context, residentID id.ResidentID) ([]*docmodels.IncomeDocument, error)
}

// LeaseAuthorizer resolves lease ownership and enforces the caller's access.
type LeaseAuthorizer interface {
	AuthorizeLease(ctx context.Context, leaseID id.LeaseID) (*propmodels.LeaseRef, error)
}

// VerificationReevaluator re-derives a lease's verification aggregate after
// a resident's settlement changes.
type VerificationReevaluator interface {
	ReevaluateLease(ctx context.Context, leaseID id.LeaseID) error
}

// Service tracks per-resident finalization state.
type Service struct {
	store         Store
	documents     DocumentReader
	leases        LeaseAuthorizer
	verifications VerificationReevaluator
	logger        *slog.Logger
}

func New(store Store, documents DocumentReader, leases LeaseAuthorizer, verifications VerificationReevaluator, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		documents:     documents,
		leases:        leases,
		verifications: verifications,
		logger:        logger,
	}
}

// Create adds a resident to a lease the caller owns.
func (s *Service) Create(ctx context.Context, leaseID id.LeaseID, firstName, lastName string, declaredIncome id.Cents) (*models.Resident, error) {
	if firstName == "" && lastName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resident name required")
	}
	if declaredIncome < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "declared income must not be negative")
	}
	if _, err := s.leases.AuthorizeLease(ctx, leaseID); err != nil {
		return nil, err
	}
	resident := &models.Resident{
		ID:               id.NewResidentID(),
		LeaseID:          leaseID,
		FirstName:        firstName,
		LastName:         lastName,
		AnnualizedIncome: declaredIncome,
	}
	if err := s.store.Create(ctx, resident); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create resident")
	}
	return resident, nil
}

// Get returns the resident after an ownership check.
func (s *Service) Get(ctx context.Context, residentID id.ResidentID) (*models.Resident, error) {
	return s.authorize(ctx, residentID)
}

// RecordDocumentIncome recomputes the resident's working income total as a
// full resum over COMPLETED documents. Called after every document add or
// remove; resumming instead of adjusting incrementally rules out drift.
func (s *Service) RecordDocumentIncome(ctx context.Context, residentID id.ResidentID) (*models.Resident, error) {
	docs, err := s.documents.ListCompletedByResident(ctx, residentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	var total id.Cents
	for _, doc := range docs {
		total += doc.CalculatedAnnualizedIncome
	}

	resident, err := s.store.Execute(ctx, residentID, nil, func(r *models.Resident) {
		r.CalculatedAnnualizedIncome = total
		// With no COMPLETED documents left, finalization via documents no
		// longer stands.
		if len(docs) == 0 && r.IncomeFinalized {
			r.IncomeFinalized = false
			r.FinalizedAt = nil
			r.VerifiedIncome = 0
		}
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "resident not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record document income")
	}

	if !resident.Settled() {
		if err := s.verifications.ReevaluateLease(ctx, resident.LeaseID); err != nil {
			s.logger.ErrorContext(ctx, "verification reevaluation failed",
				"error", err,
				"lease_id", resident.LeaseID,
			)
		}
	}
	return resident, nil
}

// Finalize locks in the resident's verified income. Requires at least one
// COMPLETED document; no-income households go through MarkNoIncome instead.
func (s *Service) Finalize(ctx context.Context, residentID id.ResidentID, verifiedIncome id.Cents) (*models.Resident, error) {
	if verifiedIncome < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "verified income must not be negative")
	}
	if _, err := s.authorize(ctx, residentID); err != nil {
		return nil, err
	}

	docs, err := s.documents.ListCompletedByResident(ctx, residentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}

	now := requestcontext.Now(ctx)
	resident, err := s.store.Execute(ctx, residentID,
		func(r *models.Resident) error {
			if r.IncomeFinalized {
				return dErrors.New(dErrors.CodeConflict, "resident income already finalized")
			}
			if r.HasNoIncome {
				return dErrors.New(dErrors.CodeInvalidState, "resident is marked no-income; unfinalize first")
			}
			if len(docs) == 0 {
				return dErrors.New(dErrors.CodeInvalidState, "resident has no completed income documents")
			}
			return nil
		},
		func(r *models.Resident) {
			r.VerifiedIncome = verifiedIncome
			r.IncomeFinalized = true
			r.FinalizedAt = &now
		})
	if err != nil {
		return nil, s.translate(err, "failed to finalize resident")
	}

	s.logger.InfoContext(ctx, "resident income finalized",
		"resident_id", residentID,
		"verified_income", verifiedIncome,
		"request_id", requestcontext.RequestID(ctx),
	)
	return resident, nil
}

// MarkNoIncome settles the resident without documents. Mutually exclusive
// with document finalization: a finalized resident must be unfinalized
// first.
func (s *Service) MarkNoIncome(ctx context.Context, residentID id.ResidentID) (*models.Resident, error) {
	if _, err := s.authorize(ctx, residentID); err != nil {
		return nil, err
	}

	resident, err := s.store.Execute(ctx, residentID,
		func(r *models.Resident) error {
			if r.IncomeFinalized {
				return dErrors.New(dErrors.CodeInvalidState, "resident income is finalized; unfinalize first")
			}
			return nil
		},
		func(r *models.Resident) {
			r.HasNoIncome = true
		})
	if err != nil {
		return nil, s.translate(err, "failed to mark resident no-income")
	}
	return resident, nil
}

// Unfinalize revokes the resident's settlement. CalculatedAnnualizedIncome
// is preserved so prior document work is not lost. HasNoIncome is cleared
// too, forcing re-declaration; flagged for product review rather than
// inferred as stronger semantics.
func (s *Service) Unfinalize(ctx context.Context, residentID id.ResidentID) (*models.Resident, error) {
	if _, err := s.authorize(ctx, residentID); err != nil {
		return nil, err
	}

	resident, err := s.store.Execute(ctx, residentID, nil, func(r *models.Resident) {
		r.IncomeFinalized = false
		r.FinalizedAt = nil
		r.HasNoIncome = false
	})
	if err != nil {
		return nil, s.translate(err, "failed to unfinalize resident")
	}

	// Settlement was revoked: the owning verification's aggregate no longer
	// holds and must revert immediately.
	if err := s.verifications.ReevaluateLease(ctx, resident.LeaseID); err != nil {
		s.logger.ErrorContext(ctx, "verification reevaluation failed",
			"error", err,
			"lease_id", resident.LeaseID,
			"resident_id", residentID,
		)
	}
	return resident, nil
}

// authorize loads the resident and checks lease ownership. Forbidden and
// NotFound stay distinct.
func (s *Service) authorize(ctx context.Context, residentID id.ResidentID) (*models.Resident, error) {
	resident, err := s.store.Find(ctx, residentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "resident not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load resident")
	}
	if _, err := s.leases.AuthorizeLease(ctx, resident.LeaseID); err != nil {
		return nil, err
	}
	return resident, nil
}

func (s *Service) translate(err error, fallback string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "resident not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, fallback)
}

// SumDeclaredIncome totals the rent-roll declared income across a lease.
func SumDeclaredIncome(residents []*models.Resident) id.Cents {
	var total id.Cents
	for _, r := range residents {
		total += r.AnnualizedIncome
	}
	return total
}
