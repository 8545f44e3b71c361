package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"veristay/internal/resident/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
	txcontext "veristay/pkg/platform/tx"
)

// Postgres persists residents.
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

const residentColumns = `
	id, lease_id, first_name, last_name, annualized_income_cents,
	verified_income_cents, calculated_annualized_income_cents,
	income_finalized, has_no_income, finalized_at`

func (s *Postgres) Create(ctx context.Context, r *models.Resident) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO residents (`+residentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID.String(), r.LeaseID.String(), r.FirstName, r.LastName,
		int64(r.AnnualizedIncome), int64(r.VerifiedIncome),
		int64(r.CalculatedAnnualizedIncome), r.IncomeFinalized, r.HasNoIncome, r.FinalizedAt)
	if err != nil {
		return fmt.Errorf("create resident: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResident(row rowScanner) (*models.Resident, error) {
	var (
		r                     models.Resident
		rawID, rawLease       string
		annualized, verified  int64
		calculated            int64
		finalizedAt           sql.NullTime
	)
	err := row.Scan(&rawID, &rawLease, &r.FirstName, &r.LastName,
		&annualized, &verified, &calculated, &r.IncomeFinalized, &r.HasNoIncome, &finalizedAt)
	if err != nil {
		return nil, err
	}
	residentID, err := id.ParseResidentID(rawID)
	if err != nil {
		return nil, fmt.Errorf("bad resident id: %w", err)
	}
	leaseID, err := id.ParseLeaseID(rawLease)
	if err != nil {
		return nil, fmt.Errorf("bad lease id: %w", err)
	}
	r.ID = residentID
	r.LeaseID = leaseID
	r.AnnualizedIncome = id.Cents(annualized)
	r.VerifiedIncome = id.Cents(verified)
	r.CalculatedAnnualizedIncome = id.Cents(calculated)
	if finalizedAt.Valid {
		r.FinalizedAt = &finalizedAt.Time
	}
	return &r, nil
}

func (s *Postgres) Find(ctx context.Context, residentID id.ResidentID) (*models.Resident, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+residentColumns+` FROM residents WHERE id = $1
	`, residentID.String())
	r, err := scanResident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resident not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find resident: %w", err)
	}
	return r, nil
}

func (s *Postgres) ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*models.Resident, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+residentColumns+` FROM residents WHERE lease_id = $1 ORDER BY id
	`, leaseID.String())
	if err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	defer rows.Close()

	var out []*models.Resident
	for rows.Next() {
		r, err := scanResident(rows)
		if err != nil {
			return nil, fmt.Errorf("list residents: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Execute validates and mutates a resident atomically via SELECT FOR UPDATE.
func (s *Postgres) Execute(ctx context.Context, residentID id.ResidentID, validate func(*models.Resident) error, mutate func(*models.Resident)) (*models.Resident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resident update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+residentColumns+` FROM residents WHERE id = $1 FOR UPDATE
	`, residentID.String())
	r, err := scanResident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resident not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("resident update: %w", err)
	}

	if validate != nil {
		if err := validate(r); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(r)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE residents SET
			annualized_income_cents = $2, verified_income_cents = $3,
			calculated_annualized_income_cents = $4, income_finalized = $5,
			has_no_income = $6, finalized_at = $7
		WHERE id = $1
	`, r.ID.String(), int64(r.AnnualizedIncome), int64(r.VerifiedIncome),
		int64(r.CalculatedAnnualizedIncome), r.IncomeFinalized, r.HasNoIncome, r.FinalizedAt)
	if err != nil {
		return nil, fmt.Errorf("resident update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("resident update: %w", err)
	}
	return r, nil
}
