package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	omodels "veristay/internal/override/models"
	propmodels "veristay/internal/property/models"
	"veristay/internal/rentroll/metrics"
	"veristay/internal/rentroll/models"
	resmodels "veristay/internal/resident/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/sentinel"
	"veristay/pkg/requestcontext"
)

// Store is the persistence surface for rent-roll snapshots.
type Store interface {
	Create(ctx context.Context, snap *models.Snapshot) error
	Find(ctx context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Snapshot, error)
	Delete(ctx context.Context, snapshotID id.SnapshotID) error
}

// PropertyAuthorizer loads a property with the caller's ownership enforced.
type PropertyAuthorizer interface {
	Get(ctx context.Context, propertyID id.PropertyID) (*propmodels.Property, error)
}

// PropertyDirectory is the slice of the property store ingestion drives:
// resolving units by label, creating what the roll names but the system
// lacks, and linking tenancies.
type PropertyDirectory interface {
	FindUnitByLabel(ctx context.Context, propertyID id.PropertyID, label string) (*propmodels.Unit, error)
	CreateUnit(ctx context.Context, u *propmodels.Unit) error
	ListLeasesByUnit(ctx context.Context, unitID id.UnitID) ([]*propmodels.Lease, error)
	CreateLease(ctx context.Context, l *propmodels.Lease) error
	LinkTenancy(ctx context.Context, leaseID id.LeaseID, tenancy propmodels.Tenancy) error
}

// ResidentDirectory upserts declared incomes onto residents.
type ResidentDirectory interface {
	Create(ctx context.Context, r *resmodels.Resident) error
	ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*resmodels.Resident, error)
	Execute(ctx context.Context, residentID id.ResidentID, validate func(*resmodels.Resident) error, mutate func(*resmodels.Resident)) (*resmodels.Resident, error)
}

// DiscrepancyChecker raises the billing check after ingestion.
type DiscrepancyChecker interface {
	CheckUnitCountDiscrepancy(ctx context.Context, propertyID id.PropertyID, actualCount int) (*omodels.UnitCountDiscrepancy, error)
}

// OverrideFiler files the SNAPSHOT_DELETION ask that gates removal.
type OverrideFiler interface {
	Create(ctx context.Context, reqType omodels.RequestType, targetKey, explanation string) (*omodels.OverrideRequest, error)
}

// Service owns rent-roll snapshot ingestion and the gated deletion flow.
type Service struct {
	store         Store
	properties    PropertyAuthorizer
	directory     PropertyDirectory
	residents     ResidentDirectory
	discrepancies DiscrepancyChecker
	overrides     OverrideFiler
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(store Store, properties PropertyAuthorizer, directory PropertyDirectory, residents ResidentDirectory, discrepancies DiscrepancyChecker, overrides OverrideFiler, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		properties:    properties,
		directory:     directory,
		residents:     residents,
		discrepancies: discrepancies,
		overrides:     overrides,
		metrics:       m,
		logger:        logger,
	}
}

// IngestSnapshot reconciles one rent roll against the system's view of the
// property. Units and leases named by the roll but unknown to the system
// are created; every touched lease gets a tenancy link, ending its
// provisional state. Declared incomes are upserted onto residents matched
// by name. The distinct-unit count feeds the billing discrepancy check,
// whose outcome never fails the ingestion.
func (s *Service) IngestSnapshot(ctx context.Context, propertyID id.PropertyID, rows []models.SnapshotRow) (*models.Snapshot, error) {
	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "rent roll has no rows")
	}
	for i, row := range rows {
		if strings.TrimSpace(row.UnitLabel) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "rent roll row has no unit label").
				WithDetail("row", i)
		}
		if row.DeclaredIncome < 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "declared income must not be negative").
				WithDetail("row", i)
		}
	}
	if _, err := s.properties.Get(ctx, propertyID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	snap := &models.Snapshot{
		ID:         id.NewSnapshotID(),
		PropertyID: propertyID,
		Rows:       rows,
		IngestedAt: now,
	}

	linked := 0
	leaseByUnit := make(map[string]id.LeaseID)
	for _, row := range rows {
		label := strings.TrimSpace(row.UnitLabel)
		leaseID, ok := leaseByUnit[label]
		if !ok {
			var err error
			leaseID, err = s.leaseForUnit(ctx, snap, label, now)
			if err != nil {
				return nil, err
			}
			leaseByUnit[label] = leaseID
			linked++
		}
		if err := s.upsertResident(ctx, leaseID, row); err != nil {
			return nil, err
		}
	}
	snap.UnitsObserved = len(leaseByUnit)

	if err := s.store.Create(ctx, snap); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store snapshot")
	}
	if s.metrics != nil {
		s.metrics.IncrementSnapshotsIngested()
		s.metrics.AddRowsIngested(len(rows))
		s.metrics.AddLeasesLinked(linked)
	}

	if _, err := s.discrepancies.CheckUnitCountDiscrepancy(ctx, propertyID, snap.UnitsObserved); err != nil {
		s.logger.ErrorContext(ctx, "unit count discrepancy check failed",
			"error", err,
			"property_id", propertyID,
		)
	}

	s.logger.InfoContext(ctx, "rent roll ingested",
		"snapshot_id", snap.ID,
		"property_id", propertyID,
		"rows", len(rows),
		"units_observed", snap.UnitsObserved,
		"request_id", requestcontext.RequestID(ctx),
	)
	return snap, nil
}

// Get returns a snapshot after an ownership check through its property.
func (s *Service) Get(ctx context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error) {
	snap, err := s.store.Find(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "snapshot not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load snapshot")
	}
	if _, err := s.properties.Get(ctx, snap.PropertyID); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListByProperty returns a property's snapshots, newest first.
func (s *Service) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Snapshot, error) {
	if _, err := s.properties.Get(ctx, propertyID); err != nil {
		return nil, err
	}
	out, err := s.store.ListByProperty(ctx, propertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list snapshots")
	}
	return out, nil
}

// RequestDeletion files the SNAPSHOT_DELETION ask. The snapshot itself is
// untouched until an admin approves; DeleteSnapshot runs from the
// adjudication flow.
func (s *Service) RequestDeletion(ctx context.Context, snapshotID id.SnapshotID, explanation string) (*omodels.OverrideRequest, error) {
	snap, err := s.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	req, err := s.overrides.Create(ctx, omodels.TypeSnapshotDeletion, omodels.TargetSnapshot(snap.ID), explanation)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "snapshot deletion requested",
		"snapshot_id", snapshotID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return req, nil
}

// DeleteSnapshot removes a snapshot. Called from the adjudication flow on
// an approved SNAPSHOT_DELETION override. Tenancy links made by the
// snapshot survive; deletion erases the audit record, not the
// reconciliation it performed.
func (s *Service) DeleteSnapshot(ctx context.Context, snapshotID id.SnapshotID) error {
	if err := s.store.Delete(ctx, snapshotID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "snapshot not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete snapshot")
	}
	s.logger.InfoContext(ctx, "snapshot deleted", "snapshot_id", snapshotID)
	return nil
}

// leaseForUnit resolves the lease a roll row lands on, creating the unit
// and lease when the roll names ones the system has never seen, and links
// the tenancy either way.
func (s *Service) leaseForUnit(ctx context.Context, snap *models.Snapshot, label string, now time.Time) (id.LeaseID, error) {
	unit, err := s.directory.FindUnitByLabel(ctx, snap.PropertyID, label)
	if errors.Is(err, sentinel.ErrNotFound) {
		unit = &propmodels.Unit{
			ID:         id.NewUnitID(),
			PropertyID: snap.PropertyID,
			Label:      label,
		}
		if err := s.directory.CreateUnit(ctx, unit); err != nil {
			return id.LeaseID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create unit").
				WithDetail("unit_label", label)
		}
	} else if err != nil {
		return id.LeaseID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve unit").
			WithDetail("unit_label", label)
	}

	leases, err := s.directory.ListLeasesByUnit(ctx, unit.ID)
	if err != nil {
		return id.LeaseID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list leases")
	}
	var lease *propmodels.Lease
	if len(leases) > 0 {
		sort.Slice(leases, func(i, j int) bool {
			return leases[i].CreatedAt.After(leases[j].CreatedAt)
		})
		lease = leases[0]
	} else {
		lease = &propmodels.Lease{
			ID:        id.NewLeaseID(),
			UnitID:    unit.ID,
			CreatedAt: now,
		}
		if err := s.directory.CreateLease(ctx, lease); err != nil {
			return id.LeaseID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create lease").
				WithDetail("unit_label", label)
		}
	}

	tenancy := propmodels.Tenancy{SnapshotID: snap.ID, LinkedAt: now}
	if err := s.directory.LinkTenancy(ctx, lease.ID, tenancy); err != nil {
		return id.LeaseID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to link tenancy")
	}
	return lease.ID, nil
}

// upsertResident lands a row's declared income on the lease's resident,
// matched by name. The roll is authoritative for the declared figure only;
// verified state is untouched.
func (s *Service) upsertResident(ctx context.Context, leaseID id.LeaseID, row models.SnapshotRow) error {
	residents, err := s.residents.ListByLease(ctx, leaseID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list residents")
	}
	for _, r := range residents {
		if !sameName(r, row) {
			continue
		}
		_, err := s.residents.Execute(ctx, r.ID, nil, func(res *resmodels.Resident) {
			res.AnnualizedIncome = row.DeclaredIncome
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update resident income")
		}
		return nil
	}

	resident := &resmodels.Resident{
		ID:               id.NewResidentID(),
		LeaseID:          leaseID,
		FirstName:        strings.TrimSpace(row.FirstName),
		LastName:         strings.TrimSpace(row.LastName),
		AnnualizedIncome: row.DeclaredIncome,
	}
	if err := s.residents.Create(ctx, resident); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create resident")
	}
	return nil
}

func sameName(r *resmodels.Resident, row models.SnapshotRow) bool {
	return strings.EqualFold(strings.TrimSpace(r.FirstName), strings.TrimSpace(row.FirstName)) &&
		strings.EqualFold(strings.TrimSpace(r.LastName), strings.TrimSpace(row.LastName))
}
