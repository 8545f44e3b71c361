package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"veristay/internal/property/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/sentinel"
	"veristay/pkg/requestcontext"
)

// Store is the persistence surface the property service needs.
type Store interface {
	CreateProperty(ctx context.Context, p *models.Property) error
	FindProperty(ctx context.Context, propertyID id.PropertyID) (*models.Property, error)
	DeleteProperty(ctx context.Context, propertyID id.PropertyID, now time.Time) error
	CreateUnit(ctx context.Context, u *models.Unit) error
	FindUnit(ctx context.Context, unitID id.UnitID) (*models.Unit, error)
	CreateLease(ctx context.Context, l *models.Lease) error
	ResolveLease(ctx context.Context, leaseID id.LeaseID) (*models.LeaseRef, error)
}

// VerificationReader reports verification activity that blocks property
// deletion.
type VerificationReader interface {
	HasInProgressForProperty(ctx context.Context, propertyID id.PropertyID) (bool, error)
}

// Service owns property, unit, and lease plumbing plus the ownership checks
// every other module routes through.
type Service struct {
	store         Store
	verifications VerificationReader
	logger        *slog.Logger
}

func New(store Store, verifications VerificationReader, logger *slog.Logger) *Service {
	return &Service{store: store, verifications: verifications, logger: logger}
}

// CreateInput describes a new property and its units.
type CreateInput struct {
	Name          string
	Address       string
	NumberOfUnits int
	ServiceTier   models.ServiceTier
	UnitLabels    []string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Property, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	if in.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "property name required")
	}
	if in.NumberOfUnits <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "number of units must be positive")
	}
	tier := in.ServiceTier
	if tier == "" {
		tier = models.TierStandard
	}
	if tier != models.TierStandard && tier != models.TierPremium {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown service tier")
	}

	now := requestcontext.Now(ctx)
	property := &models.Property{
		ID:            id.NewPropertyID(),
		OwnerID:       userID,
		Name:          in.Name,
		Address:       in.Address,
		NumberOfUnits: in.NumberOfUnits,
		ServiceTier:   tier,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateProperty(ctx, property); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create property")
	}
	for _, label := range in.UnitLabels {
		unit := &models.Unit{ID: id.NewUnitID(), PropertyID: property.ID, Label: label}
		if err := s.store.CreateUnit(ctx, unit); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil, dErrors.New(dErrors.CodeConflict, "duplicate unit label: "+label)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create unit")
		}
	}
	return property, nil
}

// Get returns the property after an ownership check. Admins see everything.
func (s *Service) Get(ctx context.Context, propertyID id.PropertyID) (*models.Property, error) {
	property, err := s.store.FindProperty(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	if err := s.authorizeOwner(ctx, property.OwnerID); err != nil {
		return nil, err
	}
	return property, nil
}

// CreateLease opens a provisional lease on a unit owned by the caller.
func (s *Service) CreateLease(ctx context.Context, unitID id.UnitID) (*models.Lease, error) {
	unit, err := s.store.FindUnit(ctx, unitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load unit")
	}
	property, err := s.store.FindProperty(ctx, unit.PropertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	if err := s.authorizeOwner(ctx, property.OwnerID); err != nil {
		return nil, err
	}

	lease := &models.Lease{
		ID:        id.NewLeaseID(),
		UnitID:    unitID,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.CreateLease(ctx, lease); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create lease")
	}
	return lease, nil
}

// AuthorizeLease resolves the lease ownership chain and verifies the caller
// may act on it. NotFound and Forbidden stay distinct per the error
// taxonomy; transports may conflate them.
func (s *Service) AuthorizeLease(ctx context.Context, leaseID id.LeaseID) (*models.LeaseRef, error) {
	ref, err := s.store.ResolveLease(ctx, leaseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "lease not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve lease")
	}
	if err := s.authorizeOwner(ctx, ref.OwnerID); err != nil {
		return nil, err
	}
	return ref, nil
}

// Delete removes a property. Called from the adjudication flow on an
// approved PROPERTY_DELETION override; refused while any unit still has an
// in-progress verification.
func (s *Service) Delete(ctx context.Context, propertyID id.PropertyID) error {
	property, err := s.store.FindProperty(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}

	busy, err := s.verifications.HasInProgressForProperty(ctx, property.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check verification activity")
	}
	if busy {
		return dErrors.New(dErrors.CodeInvalidState, "property has an in-progress income verification")
	}

	if err := s.store.DeleteProperty(ctx, propertyID, requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete property")
	}
	s.logger.InfoContext(ctx, "property deleted",
		"property_id", propertyID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// authorizeOwner allows the owner and any admin.
func (s *Service) authorizeOwner(ctx context.Context, ownerID id.UserID) error {
	if requestcontext.Role(ctx) == id.RoleAdmin {
		return nil
	}
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	if userID != ownerID {
		return dErrors.New(dErrors.CodeForbidden, "forbidden")
	}
	return nil
}
