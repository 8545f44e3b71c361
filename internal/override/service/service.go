package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"veristay/internal/override/metrics"
	"veristay/internal/override/models"
	propmodels "veristay/internal/property/models"
	resmodels "veristay/internal/resident/models"
	vermodels "veristay/internal/verification/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/audit"
	"veristay/pkg/platform/sentinel"
	"veristay/pkg/requestcontext"
)

// IncomeTolerance is the absolute declared-vs-verified difference that is
// absorbed as rounding noise rather than flagged.
const IncomeTolerance = id.Cents(100)

// Store is the persistence surface for override requests and unit-count
// discrepancies.
type Store interface {
	CreateRequest(ctx context.Context, req *models.OverrideRequest) (*models.OverrideRequest, bool, error)
	FindRequest(ctx context.Context, overrideID id.OverrideID) (*models.OverrideRequest, error)
	ListPendingRequests(ctx context.Context) ([]*models.OverrideRequest, error)
	DeletePendingRequest(ctx context.Context, reqType models.RequestType, targetKey string) error
	ExecuteRequest(ctx context.Context, overrideID id.OverrideID, validate func(*models.OverrideRequest) error, mutate func(*models.OverrideRequest)) (*models.OverrideRequest, error)
	CreateDiscrepancy(ctx context.Context, d *models.UnitCountDiscrepancy) (*models.UnitCountDiscrepancy, bool, error)
	FindDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID) (*models.UnitCountDiscrepancy, error)
	ListPendingDiscrepancies(ctx context.Context) ([]*models.UnitCountDiscrepancy, error)
	ExecuteDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID, validate func(*models.UnitCountDiscrepancy) error, mutate func(*models.UnitCountDiscrepancy)) (*models.UnitCountDiscrepancy, error)
}

// ResidentReader supplies declared incomes for the discrepancy comparison.
type ResidentReader interface {
	ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*resmodels.Resident, error)
}

// VerificationReader supplies the finalized household total.
type VerificationReader interface {
	ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*vermodels.IncomeVerification, error)
}

// PropertyReader supplies declared unit counts and the billing tier.
type PropertyReader interface {
	FindProperty(ctx context.Context, propertyID id.PropertyID) (*propmodels.Property, error)
}

// AuditPublisher records adjudication outcomes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service runs discrepancy detection and override request bookkeeping.
type Service struct {
	store         Store
	residents     ResidentReader
	verifications VerificationReader
	properties    PropertyReader
	auditor       AuditPublisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(store Store, residents ResidentReader, verifications VerificationReader, properties PropertyReader, auditor AuditPublisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		residents:     residents,
		verifications: verifications,
		properties:    properties,
		auditor:       auditor,
		metrics:       m,
		logger:        logger,
	}
}

// Create files an override request, deduplicating onto any PENDING request
// for the same (type, target). The second caller gets the first caller's
// request back, never a duplicate.
func (s *Service) Create(ctx context.Context, reqType models.RequestType, targetKey, explanation string) (*models.OverrideRequest, error) {
	if !reqType.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown override request type").
			WithDetail("request_type", string(reqType))
	}
	if strings.TrimSpace(targetKey) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "override target required")
	}

	req := &models.OverrideRequest{
		ID:          id.NewOverrideID(),
		Type:        reqType,
		Status:      models.StatusPending,
		TargetKey:   targetKey,
		Explanation: explanation,
		RequesterID: requestcontext.UserID(ctx),
		CreatedAt:   requestcontext.Now(ctx),
	}
	winner, created, err := s.store.CreateRequest(ctx, req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create override request")
	}
	if !created {
		if s.metrics != nil {
			s.metrics.IncrementDeduplicated()
		}
		return winner, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementCreated(string(reqType))
	}
	s.logger.InfoContext(ctx, "override request created",
		"override_id", winner.ID,
		"request_type", reqType,
		"target_key", targetKey,
		"request_id", requestcontext.RequestID(ctx),
	)
	return winner, nil
}

// WithdrawPending drops the PENDING request for (type, target). Called
// when the target entity is removed and the ask is moot; withdrawing a
// target with no pending request is a no-op.
func (s *Service) WithdrawPending(ctx context.Context, reqType models.RequestType, targetKey string) error {
	if err := s.store.DeletePendingRequest(ctx, reqType, targetKey); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to withdraw override request")
	}
	return nil
}

// Get returns a single override request.
func (s *Service) Get(ctx context.Context, overrideID id.OverrideID) (*models.OverrideRequest, error) {
	req, err := s.store.FindRequest(ctx, overrideID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "override request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load override request")
	}
	return req, nil
}

// ListPending returns the adjudication queue, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*models.OverrideRequest, error) {
	out, err := s.store.ListPendingRequests(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list override requests")
	}
	return out, nil
}

// CheckIncomeDiscrepancy compares the lease's declared income sum against
// its finalized verified total and files an INCOME_DISCREPANCY request when
// they differ by more than the tolerance. A lease with no finalized
// verification is skipped.
func (s *Service) CheckIncomeDiscrepancy(ctx context.Context, leaseID id.LeaseID) error {
	verifications, err := s.verifications.ListByLease(ctx, leaseID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	var verified *id.Cents
	for _, v := range verifications {
		if v.Status == vermodels.StatusFinalized {
			income := v.CalculatedVerifiedIncome
			verified = &income
		}
	}
	if verified == nil {
		return nil
	}

	residents, err := s.residents.ListByLease(ctx, leaseID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list residents")
	}
	var declared id.Cents
	for _, r := range residents {
		declared += r.AnnualizedIncome
	}

	difference := (declared - *verified).Abs()
	if difference <= IncomeTolerance {
		return nil
	}

	explanation := "declared household income " + declared.String() +
		" differs from verified " + verified.String() + " by " + difference.String()
	_, err = s.Create(ctx, models.TypeIncomeDiscrepancy, models.TargetLease(leaseID), explanation)
	return err
}

// CheckUnitCountDiscrepancy compares the property's declared unit count to
// the count observed in an ingested rent roll. Only an overage is flagged:
// actual > declared means units the manager is not being billed for. A
// shortfall is not a billing problem and records nothing.
func (s *Service) CheckUnitCountDiscrepancy(ctx context.Context, propertyID id.PropertyID, actualCount int) (*models.UnitCountDiscrepancy, error) {
	if actualCount < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "actual unit count must not be negative")
	}
	property, err := s.properties.FindProperty(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	if actualCount <= property.NumberOfUnits {
		return nil, nil
	}

	overage := actualCount - property.NumberOfUnits
	d := &models.UnitCountDiscrepancy{
		ID:                id.NewDiscrepancyID(),
		PropertyID:        propertyID,
		DeclaredUnits:     property.NumberOfUnits,
		ActualUnits:       actualCount,
		PaymentDifference: id.Cents(int64(overage)) * property.ServiceTier.UnitPrice(),
		Status:            models.DiscrepancyPending,
		CreatedAt:         requestcontext.Now(ctx),
	}
	winner, created, err := s.store.CreateDiscrepancy(ctx, d)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create discrepancy")
	}
	if created {
		if s.metrics != nil {
			s.metrics.IncrementDiscrepancyDetected()
		}
		s.logger.InfoContext(ctx, "unit count discrepancy detected",
			"property_id", propertyID,
			"declared_units", property.NumberOfUnits,
			"actual_units", actualCount,
			"payment_difference", d.PaymentDifference,
		)
	}
	return winner, nil
}

// ResolveUnitCountDiscrepancy closes a discrepancy as corrected.
// Idempotent: resolving an already-RESOLVED record returns it unchanged.
func (s *Service) ResolveUnitCountDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID, notes string) (*models.UnitCountDiscrepancy, error) {
	return s.closeDiscrepancy(ctx, discrepancyID, models.DiscrepancyResolved, notes, audit.ActionDiscrepancyResolved)
}

// WaiveUnitCountDiscrepancy closes a discrepancy as intentionally ignored.
// Idempotent: waiving an already-WAIVED record returns it unchanged.
func (s *Service) WaiveUnitCountDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID, notes string) (*models.UnitCountDiscrepancy, error) {
	return s.closeDiscrepancy(ctx, discrepancyID, models.DiscrepancyWaived, notes, audit.ActionDiscrepancyWaived)
}

// ListPendingDiscrepancies returns open unit-count discrepancies.
func (s *Service) ListPendingDiscrepancies(ctx context.Context) ([]*models.UnitCountDiscrepancy, error) {
	out, err := s.store.ListPendingDiscrepancies(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list discrepancies")
	}
	return out, nil
}

func (s *Service) closeDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID, terminal models.DiscrepancyStatus, notes, action string) (*models.UnitCountDiscrepancy, error) {
	adminID := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	alreadyClosed := false
	d, err := s.store.ExecuteDiscrepancy(ctx, discrepancyID,
		func(cur *models.UnitCountDiscrepancy) error {
			if cur.Status == terminal {
				alreadyClosed = true
				return nil
			}
			if cur.Status != models.DiscrepancyPending {
				return dErrors.New(dErrors.CodeConflict, "discrepancy already closed with a different outcome").
					WithDetail("status", string(cur.Status))
			}
			return nil
		},
		func(cur *models.UnitCountDiscrepancy) {
			if alreadyClosed {
				return
			}
			cur.Status = terminal
			cur.Notes = notes
			cur.ResolvedBy = &adminID
			cur.ResolvedAt = &now
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "discrepancy not found")
		}
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to close discrepancy")
	}
	if alreadyClosed {
		return d, nil
	}

	s.auditor.Emit(ctx, audit.Event{
		ActorID: adminID,
		Action:  action,
		Subject: d.ID.String(),
		Notes:   notes,
	})
	s.logger.InfoContext(ctx, "unit count discrepancy closed",
		"discrepancy_id", discrepancyID,
		"status", terminal,
		"admin_id", adminID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return d, nil
}
