package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"veristay/internal/rentroll/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
	txcontext "veristay/pkg/platform/tx"
)

// Postgres persists rent-roll snapshots. Rows are stored as a JSONB blob;
// they are an audit record, never queried field-by-field.
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

const snapshotColumns = `id, property_id, rows, units_observed, ingested_at`

func (s *Postgres) Create(ctx context.Context, snap *models.Snapshot) error {
	rows, err := json.Marshal(snap.Rows)
	if err != nil {
		return fmt.Errorf("encode snapshot rows: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO rent_roll_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.ID.String(), snap.PropertyID.String(), rows, snap.UnitsObserved, snap.IngestedAt)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var (
		snap           models.Snapshot
		rawID, rawProp string
		rawRows        []byte
	)
	if err := row.Scan(&rawID, &rawProp, &rawRows, &snap.UnitsObserved, &snap.IngestedAt); err != nil {
		return nil, err
	}
	var err error
	if snap.ID, err = id.ParseSnapshotID(rawID); err != nil {
		return nil, fmt.Errorf("parse snapshot id: %w", err)
	}
	if snap.PropertyID, err = id.ParsePropertyID(rawProp); err != nil {
		return nil, fmt.Errorf("parse property id: %w", err)
	}
	if err := json.Unmarshal(rawRows, &snap.Rows); err != nil {
		return nil, fmt.Errorf("decode snapshot rows: %w", err)
	}
	return &snap, nil
}

func (s *Postgres) Find(ctx context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM rent_roll_snapshots
		WHERE id = $1
	`, snapshotID.String())
	snap, err := scanSnapshot(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("snapshot not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find snapshot: %w", err)
	}
	return snap, nil
}

func (s *Postgres) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Snapshot, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM rent_roll_snapshots
		WHERE property_id = $1
		ORDER BY ingested_at DESC
	`, propertyID.String())
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, snapshotID id.SnapshotID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM rent_roll_snapshots WHERE id = $1
	`, snapshotID.String())
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("snapshot not found: %w", sentinel.ErrNotFound)
	}
	return nil
}
