package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"veristay/internal/override/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
	txcontext "veristay/pkg/platform/tx"
)

// Postgres persists override requests and unit-count discrepancies. The
// one-PENDING-per-(type, target) invariant lives in the schema as partial
// unique indexes, so a concurrent duplicate insert loses cleanly and the
// winner is re-read.
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

const requestColumns = `
	id, request_type, status, target_key, explanation, requester_id,
	admin_notes, reviewer_id, reviewed_at, created_at`

// CreateRequest inserts the request; on losing the partial-unique-index
// race it returns the already-PENDING winner instead.
func (s *Postgres) CreateRequest(ctx context.Context, req *models.OverrideRequest) (*models.OverrideRequest, bool, error) {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO override_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, req.ID.String(), string(req.Type), string(req.Status), req.TargetKey,
		req.Explanation, req.RequesterID.String(), req.AdminNotes,
		userIDPtr(req.ReviewerID), req.ReviewedAt, req.CreatedAt)
	if err == nil {
		cp := *req
		return &cp, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, fmt.Errorf("create override request: %w", err)
	}
	existing, findErr := s.findPendingRequest(ctx, req.Type, req.TargetKey)
	if findErr != nil {
		return nil, false, fmt.Errorf("create override request: %w", findErr)
	}
	return existing, false, nil
}

func (s *Postgres) findPendingRequest(ctx context.Context, reqType models.RequestType, targetKey string) (*models.OverrideRequest, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM override_requests
		WHERE request_type = $1 AND target_key = $2 AND status = 'PENDING'
	`, string(reqType), targetKey)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("override request not found: %w", sentinel.ErrNotFound)
		}
		return nil, err
	}
	return req, nil
}

func (s *Postgres) FindRequest(ctx context.Context, overrideID id.OverrideID) (*models.OverrideRequest, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM override_requests WHERE id = $1
	`, overrideID.String())
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("override request not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find override request: %w", err)
	}
	return req, nil
}

func (s *Postgres) ListPendingRequests(ctx context.Context) ([]*models.OverrideRequest, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM override_requests
		WHERE status = 'PENDING' ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list override requests: %w", err)
	}
	defer rows.Close()

	var out []*models.OverrideRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("list override requests: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ExecuteRequest validates and mutates an override request atomically via
// SELECT FOR UPDATE. When the context carries a caller-owned transaction
// the row is locked and written inside it, so adjudication can make a
// status flip and its side effect one atomic unit.
func (s *Postgres) ExecuteRequest(ctx context.Context, overrideID id.OverrideID, validate func(*models.OverrideRequest) error, mutate func(*models.OverrideRequest)) (*models.OverrideRequest, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.executeRequestIn(ctx, tx, overrideID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin override update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	req, err := s.executeRequestIn(ctx, tx, overrideID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("override update: %w", err)
	}
	return req, nil
}

func (s *Postgres) executeRequestIn(ctx context.Context, tx *sql.Tx, overrideID id.OverrideID, validate func(*models.OverrideRequest) error, mutate func(*models.OverrideRequest)) (*models.OverrideRequest, error) {
	req, err := s.lockRequest(ctx, tx, overrideID)
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(req); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(req)
	}
	if err := updateRequest(ctx, tx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Postgres) lockRequest(ctx context.Context, tx *sql.Tx, overrideID id.OverrideID) (*models.OverrideRequest, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM override_requests WHERE id = $1 FOR UPDATE
	`, overrideID.String())
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("override request not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("override update: %w", err)
	}
	return req, nil
}

func updateRequest(ctx context.Context, tx *sql.Tx, req *models.OverrideRequest) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE override_requests SET
			status = $2, admin_notes = $3, reviewer_id = $4, reviewed_at = $5
		WHERE id = $1
	`, req.ID.String(), string(req.Status), req.AdminNotes,
		userIDPtr(req.ReviewerID), req.ReviewedAt)
	if err != nil {
		return fmt.Errorf("override update: %w", err)
	}
	return nil
}

// DeletePendingRequest removes the PENDING request for (type, target) if
// one exists.
func (s *Postgres) DeletePendingRequest(ctx context.Context, reqType models.RequestType, targetKey string) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM override_requests
		WHERE request_type = $1 AND target_key = $2 AND status = 'PENDING'
	`, string(reqType), targetKey)
	if err != nil {
		return fmt.Errorf("delete pending override request: %w", err)
	}
	return nil
}

const discrepancyColumns = `
	id, property_id, declared_units, actual_units, payment_difference_cents,
	status, notes, resolved_by, resolved_at, created_at`

// CreateDiscrepancy inserts the discrepancy; on losing the
// partial-unique-index race it returns the already-PENDING winner.
func (s *Postgres) CreateDiscrepancy(ctx context.Context, d *models.UnitCountDiscrepancy) (*models.UnitCountDiscrepancy, bool, error) {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO unit_count_discrepancies (`+discrepancyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID.String(), d.PropertyID.String(), d.DeclaredUnits, d.ActualUnits,
		int64(d.PaymentDifference), string(d.Status), d.Notes,
		userIDPtr(d.ResolvedBy), d.ResolvedAt, d.CreatedAt)
	if err == nil {
		cp := *d
		return &cp, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, fmt.Errorf("create discrepancy: %w", err)
	}
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+discrepancyColumns+` FROM unit_count_discrepancies
		WHERE property_id = $1 AND status = 'PENDING'
	`, d.PropertyID.String())
	existing, findErr := scanDiscrepancy(row)
	if findErr != nil {
		return nil, false, fmt.Errorf("create discrepancy: %w", findErr)
	}
	return existing, false, nil
}

func (s *Postgres) FindDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID) (*models.UnitCountDiscrepancy, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+discrepancyColumns+` FROM unit_count_discrepancies WHERE id = $1
	`, discrepancyID.String())
	d, err := scanDiscrepancy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("discrepancy not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find discrepancy: %w", err)
	}
	return d, nil
}

func (s *Postgres) ListPendingDiscrepancies(ctx context.Context) ([]*models.UnitCountDiscrepancy, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+discrepancyColumns+` FROM unit_count_discrepancies
		WHERE status = 'PENDING' ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list discrepancies: %w", err)
	}
	defer rows.Close()

	var out []*models.UnitCountDiscrepancy
	for rows.Next() {
		d, err := scanDiscrepancy(rows)
		if err != nil {
			return nil, fmt.Errorf("list discrepancies: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ExecuteDiscrepancy validates and mutates a discrepancy atomically via
// SELECT FOR UPDATE.
func (s *Postgres) ExecuteDiscrepancy(ctx context.Context, discrepancyID id.DiscrepancyID, validate func(*models.UnitCountDiscrepancy) error, mutate func(*models.UnitCountDiscrepancy)) (*models.UnitCountDiscrepancy, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin discrepancy update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+discrepancyColumns+` FROM unit_count_discrepancies WHERE id = $1 FOR UPDATE
	`, discrepancyID.String())
	d, err := scanDiscrepancy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("discrepancy not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("discrepancy update: %w", err)
	}

	if validate != nil {
		if err := validate(d); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(d)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE unit_count_discrepancies SET
			status = $2, notes = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $1
	`, d.ID.String(), string(d.Status), d.Notes, userIDPtr(d.ResolvedBy), d.ResolvedAt)
	if err != nil {
		return nil, fmt.Errorf("discrepancy update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("discrepancy update: %w", err)
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.OverrideRequest, error) {
	var (
		req                models.OverrideRequest
		rawID, rawReq      string
		reqType, status    string
		reviewerID         sql.NullString
		reviewedAt         sql.NullTime
	)
	err := row.Scan(&rawID, &reqType, &status, &req.TargetKey, &req.Explanation,
		&rawReq, &req.AdminNotes, &reviewerID, &reviewedAt, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	overrideID, err := id.ParseOverrideID(rawID)
	if err != nil {
		return nil, fmt.Errorf("bad override id: %w", err)
	}
	requesterID, err := id.ParseUserID(rawReq)
	if err != nil {
		return nil, fmt.Errorf("bad requester id: %w", err)
	}
	req.ID = overrideID
	req.RequesterID = requesterID
	req.Type = models.RequestType(reqType)
	req.Status = models.RequestStatus(status)
	if reviewerID.Valid {
		parsed, err := id.ParseUserID(reviewerID.String)
		if err != nil {
			return nil, fmt.Errorf("bad reviewer id: %w", err)
		}
		req.ReviewerID = &parsed
	}
	if reviewedAt.Valid {
		req.ReviewedAt = &reviewedAt.Time
	}
	return &req, nil
}

func scanDiscrepancy(row rowScanner) (*models.UnitCountDiscrepancy, error) {
	var (
		d            models.UnitCountDiscrepancy
		rawID, rawProp string
		status       string
		difference   int64
		resolvedBy   sql.NullString
		resolvedAt   sql.NullTime
	)
	err := row.Scan(&rawID, &rawProp, &d.DeclaredUnits, &d.ActualUnits,
		&difference, &status, &d.Notes, &resolvedBy, &resolvedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	discrepancyID, err := id.ParseDiscrepancyID(rawID)
	if err != nil {
		return nil, fmt.Errorf("bad discrepancy id: %w", err)
	}
	propertyID, err := id.ParsePropertyID(rawProp)
	if err != nil {
		return nil, fmt.Errorf("bad property id: %w", err)
	}
	d.ID = discrepancyID
	d.PropertyID = propertyID
	d.Status = models.DiscrepancyStatus(status)
	d.PaymentDifference = id.Cents(difference)
	if resolvedBy.Valid {
		parsed, err := id.ParseUserID(resolvedBy.String)
		if err != nil {
			return nil, fmt.Errorf("bad resolver id: %w", err)
		}
		d.ResolvedBy = &parsed
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return &d, nil
}

func userIDPtr(userID *id.UserID) any {
	if userID == nil {
		return nil
	}
	return userID.String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
