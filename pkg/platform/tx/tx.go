package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner runs a function inside one database transaction, carried through
// the context so tx-aware stores join it. A nil Runner (no database
// configured) reports false from Enabled and callers fall back to
// compensating behavior.
type Runner struct {
	db *sql.DB
}

func NewRunner(db *sql.DB) *Runner {
	if db == nil {
		return nil
	}
	return &Runner{db: db}
}

// Enabled reports whether transactional execution is available.
func (r *Runner) Enabled() bool { return r != nil }

// Run executes fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return fn(ctx)
	}
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(WithTx(ctx, dbTx)); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}
