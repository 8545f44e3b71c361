package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"veristay/internal/property/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
	txcontext "veristay/pkg/platform/tx"
)

// Postgres persists properties, units, and leases.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *Postgres) CreateProperty(ctx context.Context, p *models.Property) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO properties (id, owner_id, name, address, number_of_units, service_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID.String(), p.OwnerID.String(), p.Name, p.Address, p.NumberOfUnits, string(p.ServiceTier), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("property exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create property: %w", err)
	}
	return nil
}

func (s *Postgres) FindProperty(ctx context.Context, propertyID id.PropertyID) (*models.Property, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, owner_id, name, address, number_of_units, service_tier, created_at, updated_at
		FROM properties
		WHERE id = $1 AND deleted_at IS NULL
	`, propertyID.String())
	return scanProperty(row)
}

func scanProperty(row *sql.Row) (*models.Property, error) {
	var (
		p                 models.Property
		rawID, rawOwnerID string
		tier              string
	)
	err := row.Scan(&rawID, &rawOwnerID, &p.Name, &p.Address, &p.NumberOfUnits, &tier, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("property not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find property: %w", err)
	}
	propertyID, err := id.ParsePropertyID(rawID)
	if err != nil {
		return nil, fmt.Errorf("find property: bad id: %w", err)
	}
	ownerID, err := id.ParseUserID(rawOwnerID)
	if err != nil {
		return nil, fmt.Errorf("find property: bad owner id: %w", err)
	}
	p.ID = propertyID
	p.OwnerID = ownerID
	p.ServiceTier = models.ServiceTier(tier)
	return &p, nil
}

// DeleteProperty soft-deletes the property and removes its provisional
// leases in one transaction when none is already in flight.
func (s *Postgres) DeleteProperty(ctx context.Context, propertyID id.PropertyID, now time.Time) error {
	run := func(ctx context.Context, ex dbExecutor) error {
		res, err := ex.ExecContext(ctx, `
			UPDATE properties SET deleted_at = $2, updated_at = $2
			WHERE id = $1 AND deleted_at IS NULL
		`, propertyID.String(), now)
		if err != nil {
			return fmt.Errorf("delete property: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete property: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("property not found: %w", sentinel.ErrNotFound)
		}
		_, err = ex.ExecContext(ctx, `
			DELETE FROM leases
			WHERE tenancy_snapshot_id IS NULL
			  AND unit_id IN (SELECT id FROM units WHERE property_id = $1)
		`, propertyID.String())
		if err != nil {
			return fmt.Errorf("delete provisional leases: %w", err)
		}
		return nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete property: %w", err)
	}
	if err := run(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Postgres) CreateUnit(ctx context.Context, u *models.Unit) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO units (id, property_id, label) VALUES ($1, $2, $3)
	`, u.ID.String(), u.PropertyID.String(), u.Label)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("unit label taken: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

func (s *Postgres) FindUnit(ctx context.Context, unitID id.UnitID) (*models.Unit, error) {
	return s.scanUnit(s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, property_id, label FROM units WHERE id = $1
	`, unitID.String()))
}

func (s *Postgres) FindUnitByLabel(ctx context.Context, propertyID id.PropertyID, label string) (*models.Unit, error) {
	return s.scanUnit(s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, property_id, label FROM units WHERE property_id = $1 AND label = $2
	`, propertyID.String(), label))
}

func (s *Postgres) scanUnit(row *sql.Row) (*models.Unit, error) {
	var u models.Unit
	var rawID, rawPropertyID string
	if err := row.Scan(&rawID, &rawPropertyID, &u.Label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find unit: %w", err)
	}
	unitID, err := id.ParseUnitID(rawID)
	if err != nil {
		return nil, fmt.Errorf("find unit: bad id: %w", err)
	}
	propertyID, err := id.ParsePropertyID(rawPropertyID)
	if err != nil {
		return nil, fmt.Errorf("find unit: bad property id: %w", err)
	}
	u.ID = unitID
	u.PropertyID = propertyID
	return &u, nil
}

func (s *Postgres) CreateLease(ctx context.Context, l *models.Lease) error {
	var snapshotID any
	var linkedAt any
	if l.Tenancy != nil {
		snapshotID = l.Tenancy.SnapshotID.String()
		linkedAt = l.Tenancy.LinkedAt
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO leases (id, unit_id, tenancy_snapshot_id, tenancy_linked_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, l.ID.String(), l.UnitID.String(), snapshotID, linkedAt, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create lease: %w", err)
	}
	return nil
}

func (s *Postgres) FindLease(ctx context.Context, leaseID id.LeaseID) (*models.Lease, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, unit_id, tenancy_snapshot_id, tenancy_linked_at, created_at
		FROM leases WHERE id = $1
	`, leaseID.String())
	l, err := scanLease(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lease not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find lease: %w", err)
	}
	return l, nil
}

func scanLease(scan func(...any) error) (*models.Lease, error) {
	var (
		l             models.Lease
		rawID, rawUID string
		rawSnapshot   sql.NullString
		linkedAt      sql.NullTime
	)
	if err := scan(&rawID, &rawUID, &rawSnapshot, &linkedAt, &l.CreatedAt); err != nil {
		return nil, err
	}
	leaseID, err := id.ParseLeaseID(rawID)
	if err != nil {
		return nil, fmt.Errorf("bad lease id: %w", err)
	}
	unitID, err := id.ParseUnitID(rawUID)
	if err != nil {
		return nil, fmt.Errorf("bad unit id: %w", err)
	}
	l.ID = leaseID
	l.UnitID = unitID
	if rawSnapshot.Valid {
		snapshotID, err := id.ParseSnapshotID(rawSnapshot.String)
		if err != nil {
			return nil, fmt.Errorf("bad snapshot id: %w", err)
		}
		l.Tenancy = &models.Tenancy{SnapshotID: snapshotID, LinkedAt: linkedAt.Time}
	}
	return &l, nil
}

func (s *Postgres) ListLeasesByUnit(ctx context.Context, unitID id.UnitID) ([]*models.Lease, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, unit_id, tenancy_snapshot_id, tenancy_linked_at, created_at
		FROM leases WHERE unit_id = $1
	`, unitID.String())
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	defer rows.Close()

	var out []*models.Lease
	for rows.Next() {
		l, err := scanLease(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list leases: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Postgres) LinkTenancy(ctx context.Context, leaseID id.LeaseID, tenancy models.Tenancy) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE leases SET tenancy_snapshot_id = $2, tenancy_linked_at = $3 WHERE id = $1
	`, leaseID.String(), tenancy.SnapshotID.String(), tenancy.LinkedAt)
	if err != nil {
		return fmt.Errorf("link tenancy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link tenancy: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("lease not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) ResolveLease(ctx context.Context, leaseID id.LeaseID) (*models.LeaseRef, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT l.id, u.id, p.id, p.owner_id, l.tenancy_snapshot_id IS NULL
		FROM leases l
		JOIN units u ON u.id = l.unit_id
		JOIN properties p ON p.id = u.property_id AND p.deleted_at IS NULL
		WHERE l.id = $1
	`, leaseID.String())

	var rawLease, rawUnit, rawProperty, rawOwner string
	var provisional bool
	if err := row.Scan(&rawLease, &rawUnit, &rawProperty, &rawOwner, &provisional); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lease not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve lease: %w", err)
	}

	leaseParsed, err := id.ParseLeaseID(rawLease)
	if err != nil {
		return nil, fmt.Errorf("resolve lease: bad lease id: %w", err)
	}
	unitParsed, err := id.ParseUnitID(rawUnit)
	if err != nil {
		return nil, fmt.Errorf("resolve lease: bad unit id: %w", err)
	}
	propertyParsed, err := id.ParsePropertyID(rawProperty)
	if err != nil {
		return nil, fmt.Errorf("resolve lease: bad property id: %w", err)
	}
	ownerParsed, err := id.ParseUserID(rawOwner)
	if err != nil {
		return nil, fmt.Errorf("resolve lease: bad owner id: %w", err)
	}

	return &models.LeaseRef{
		LeaseID:     leaseParsed,
		UnitID:      unitParsed,
		PropertyID:  propertyParsed,
		OwnerID:     ownerParsed,
		Provisional: provisional,
	}, nil
}
