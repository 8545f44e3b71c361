package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"veristay/internal/verification/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
	txcontext "veristay/pkg/platform/tx"
)

// Postgres persists income verifications. The one-IN_PROGRESS-per-unit
// invariant lives in the schema as a partial unique index on
// (unit_id) WHERE status = 'IN_PROGRESS'.
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

const verificationColumns = `
	id, lease_id, unit_id, property_id, status, reason,
	period_start, period_end, due_date,
	calculated_verified_income_cents, finalized_at, created_at`

func (s *Postgres) Create(ctx context.Context, v *models.IncomeVerification) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO income_verifications (`+verificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, v.ID.String(), v.LeaseID.String(), v.UnitID.String(), v.PropertyID.String(),
		string(v.Status), string(v.Reason), v.PeriodStart, v.PeriodEnd, v.DueDate,
		int64(v.CalculatedVerifiedIncome), v.FinalizedAt, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("unit %s has an in-progress verification: %w", v.UnitID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create verification: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.IncomeVerification, error) {
	var (
		v                                    models.IncomeVerification
		rawID, rawLease, rawUnit, rawProp    string
		status, reason                       string
		income                               int64
		finalizedAt                          sql.NullTime
	)
	err := row.Scan(&rawID, &rawLease, &rawUnit, &rawProp, &status, &reason,
		&v.PeriodStart, &v.PeriodEnd, &v.DueDate, &income, &finalizedAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	verificationID, err := id.ParseVerificationID(rawID)
	if err != nil {
		return nil, fmt.Errorf("bad verification id: %w", err)
	}
	leaseID, err := id.ParseLeaseID(rawLease)
	if err != nil {
		return nil, fmt.Errorf("bad lease id: %w", err)
	}
	unitID, err := id.ParseUnitID(rawUnit)
	if err != nil {
		return nil, fmt.Errorf("bad unit id: %w", err)
	}
	propertyID, err := id.ParsePropertyID(rawProp)
	if err != nil {
		return nil, fmt.Errorf("bad property id: %w", err)
	}
	v.ID = verificationID
	v.LeaseID = leaseID
	v.UnitID = unitID
	v.PropertyID = propertyID
	v.Status = models.Status(status)
	v.Reason = models.Reason(reason)
	v.CalculatedVerifiedIncome = id.Cents(income)
	if finalizedAt.Valid {
		v.FinalizedAt = &finalizedAt.Time
	}
	return &v, nil
}

func (s *Postgres) Find(ctx context.Context, verificationID id.VerificationID) (*models.IncomeVerification, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+verificationColumns+` FROM income_verifications WHERE id = $1
	`, verificationID.String())
	v, err := scanVerification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find verification: %w", err)
	}
	return v, nil
}

func (s *Postgres) ListByLease(ctx context.Context, leaseID id.LeaseID) ([]*models.IncomeVerification, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+verificationColumns+` FROM income_verifications
		WHERE lease_id = $1 ORDER BY created_at
	`, leaseID.String())
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.IncomeVerification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("list verifications: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, verificationID id.VerificationID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM income_verifications WHERE id = $1
	`, verificationID.String())
	if err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("verification not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

// Execute validates and mutates a verification atomically via
// SELECT FOR UPDATE, so status is checked against the row the write lands
// on.
func (s *Postgres) Execute(ctx context.Context, verificationID id.VerificationID, validate func(*models.IncomeVerification) error, mutate func(*models.IncomeVerification)) (*models.IncomeVerification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin verification update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+verificationColumns+` FROM income_verifications WHERE id = $1 FOR UPDATE
	`, verificationID.String())
	v, err := scanVerification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("verification update: %w", err)
	}

	if validate != nil {
		if err := validate(v); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(v)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE income_verifications SET
			status = $2, calculated_verified_income_cents = $3, finalized_at = $4
		WHERE id = $1
	`, v.ID.String(), string(v.Status), int64(v.CalculatedVerifiedIncome), v.FinalizedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("unit %s has an in-progress verification: %w", v.UnitID, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("verification update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("verification update: %w", err)
	}
	return v, nil
}

// HasInProgressForProperty reports whether any verification under the
// property is still IN_PROGRESS.
func (s *Postgres) HasInProgressForProperty(ctx context.Context, propertyID id.PropertyID) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM income_verifications
			WHERE property_id = $1 AND status = 'IN_PROGRESS'
		)
	`, propertyID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check in-progress verifications: %w", err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
