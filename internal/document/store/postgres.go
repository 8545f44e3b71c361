package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"veristay/internal/document/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
	txcontext "veristay/pkg/platform/tx"
)

// Postgres persists income documents.
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

const docColumns = `
	id, resident_id, verification_id, document_type, status, upload_date,
	review_reason, extracted_name, box1_wages_cents, box3_ss_wages_cents,
	box5_medicare_wages_cents, gross_pay_cents, pay_frequency,
	annual_benefit_cents, calculated_annualized_income_cents, analyzed_at`

func (s *Postgres) Create(ctx context.Context, doc *models.IncomeDocument) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO income_documents (`+docColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, docArgs(doc)...)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func docArgs(doc *models.IncomeDocument) []any {
	return []any{
		doc.ID.String(), doc.ResidentID.String(), doc.VerificationID.String(),
		string(doc.Type), string(doc.Status), doc.UploadDate,
		doc.ReviewReason, doc.Fields.Name,
		nullCents(doc.Fields.Box1Wages), nullCents(doc.Fields.Box3SocialSecurityWage),
		nullCents(doc.Fields.Box5MedicareWages), nullCents(doc.Fields.GrossPay),
		nullString(string(doc.Fields.PayFrequency)), nullCents(doc.Fields.AnnualBenefit),
		int64(doc.CalculatedAnnualizedIncome), doc.AnalyzedAt,
	}
}

func nullCents(c *id.Cents) any {
	if c == nil {
		return nil
	}
	return int64(*c)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.IncomeDocument, error) {
	var (
		doc                            models.IncomeDocument
		rawID, rawResident, rawVerif   string
		docType, status                string
		box1, box3, box5, gross, bene  sql.NullInt64
		frequency                      sql.NullString
		analyzedAt                     sql.NullTime
		calculated                     int64
	)
	err := row.Scan(&rawID, &rawResident, &rawVerif, &docType, &status,
		&doc.UploadDate, &doc.ReviewReason, &doc.Fields.Name,
		&box1, &box3, &box5, &gross, &frequency, &bene, &calculated, &analyzedAt)
	if err != nil {
		return nil, err
	}
	docID, err := id.ParseDocumentID(rawID)
	if err != nil {
		return nil, fmt.Errorf("bad document id: %w", err)
	}
	residentID, err := id.ParseResidentID(rawResident)
	if err != nil {
		return nil, fmt.Errorf("bad resident id: %w", err)
	}
	verificationID, err := id.ParseVerificationID(rawVerif)
	if err != nil {
		return nil, fmt.Errorf("bad verification id: %w", err)
	}
	doc.ID = docID
	doc.ResidentID = residentID
	doc.VerificationID = verificationID
	doc.Type = models.Type(docType)
	doc.Status = models.Status(status)
	doc.Fields.Box1Wages = centsPtr(box1)
	doc.Fields.Box3SocialSecurityWage = centsPtr(box3)
	doc.Fields.Box5MedicareWages = centsPtr(box5)
	doc.Fields.GrossPay = centsPtr(gross)
	doc.Fields.AnnualBenefit = centsPtr(bene)
	if frequency.Valid {
		doc.Fields.PayFrequency = models.PayFrequency(frequency.String)
	}
	doc.CalculatedAnnualizedIncome = id.Cents(calculated)
	if analyzedAt.Valid {
		doc.AnalyzedAt = &analyzedAt.Time
	}
	return &doc, nil
}

func centsPtr(v sql.NullInt64) *id.Cents {
	if !v.Valid {
		return nil
	}
	c := id.Cents(v.Int64)
	return &c
}

func (s *Postgres) Find(ctx context.Context, docID id.DocumentID) (*models.IncomeDocument, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+docColumns+` FROM income_documents WHERE id = $1
	`, docID.String())
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (s *Postgres) Delete(ctx context.Context, docID id.DocumentID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM income_documents WHERE id = $1
	`, docID.String())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) list(ctx context.Context, where string, args ...any) ([]*models.IncomeDocument, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+docColumns+` FROM income_documents `+where+` ORDER BY upload_date
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.IncomeDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Postgres) ListByResident(ctx context.Context, residentID id.ResidentID) ([]*models.IncomeDocument, error) {
	return s.list(ctx, `WHERE resident_id = $1`, residentID.String())
}

func (s *Postgres) ListCompletedByResident(ctx context.Context, residentID id.ResidentID) ([]*models.IncomeDocument, error) {
	return s.list(ctx, `WHERE resident_id = $1 AND status = $2`, residentID.String(), string(models.StatusCompleted))
}

func (s *Postgres) ListNeedsReview(ctx context.Context) ([]*models.IncomeDocument, error) {
	return s.list(ctx, `WHERE status = $1`, string(models.StatusNeedsReview))
}

func (s *Postgres) CountByVerification(ctx context.Context, verificationID id.VerificationID) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM income_documents WHERE verification_id = $1
	`, verificationID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// ApplyAnalysis loads the row FOR UPDATE, applies the mutation only while
// the document is still PROCESSING, and writes it back. Redelivered
// analysis results find a terminal status and return applied=false.
func (s *Postgres) ApplyAnalysis(ctx context.Context, docID id.DocumentID, mutate func(*models.IncomeDocument)) (*models.IncomeDocument, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin apply analysis: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+docColumns+` FROM income_documents WHERE id = $1 FOR UPDATE
	`, docID.String())
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
		}
		return nil, false, fmt.Errorf("apply analysis: %w", err)
	}
	if doc.Status != models.StatusProcessing {
		return doc, false, tx.Commit()
	}

	mutate(doc)

	_, err = tx.ExecContext(ctx, `
		UPDATE income_documents SET
			status = $2, review_reason = $3, extracted_name = $4,
			box1_wages_cents = $5, box3_ss_wages_cents = $6,
			box5_medicare_wages_cents = $7, gross_pay_cents = $8,
			pay_frequency = $9, annual_benefit_cents = $10,
			calculated_annualized_income_cents = $11, analyzed_at = $12
		WHERE id = $1
	`, doc.ID.String(), string(doc.Status), doc.ReviewReason, doc.Fields.Name,
		nullCents(doc.Fields.Box1Wages), nullCents(doc.Fields.Box3SocialSecurityWage),
		nullCents(doc.Fields.Box5MedicareWages), nullCents(doc.Fields.GrossPay),
		nullString(string(doc.Fields.PayFrequency)), nullCents(doc.Fields.AnnualBenefit),
		int64(doc.CalculatedAnnualizedIncome), doc.AnalyzedAt)
	if err != nil {
		return nil, false, fmt.Errorf("apply analysis: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("apply analysis: %w", err)
	}
	return doc, true, nil
}

// MarkStaleProcessing is the sweep's conditional bulk transition; the WHERE
// clause makes repeated runs converge.
func (s *Postgres) MarkStaleProcessing(ctx context.Context, cutoff time.Time, reason string) ([]*models.IncomeDocument, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		UPDATE income_documents
		SET status = $1, review_reason = $2
		WHERE status = $3 AND upload_date < $4
		RETURNING `+docColumns+`
	`, string(models.StatusNeedsReview), reason, string(models.StatusProcessing), cutoff)
	if err != nil {
		return nil, fmt.Errorf("mark stale documents: %w", err)
	}
	defer rows.Close()

	var out []*models.IncomeDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("mark stale documents: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
