package service

import (
	"context"
	"errors"
	"log/slog"

	"veristay/internal/analysis"
	"veristay/internal/document/income"
	"veristay/internal/document/metrics"
	"veristay/internal/document/models"
	omodels "veristay/internal/override/models"
	propmodels "veristay/internal/property/models"
	resmodels "veristay/internal/resident/models"
	vermodels "veristay/internal/verification/models"
	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
	"veristay/pkg/platform/sentinel"
	"veristay/pkg/requestcontext"
)

// Review reasons recorded when analysis cannot complete a document.
const (
	ReasonAnalysisFailed   = "analysis failed"
	ReasonNameMismatch     = "extracted name does not match resident"
	ReasonIncomeUncomputed = "income could not be computed from extracted fields"
)

// Store is the persistence surface for income documents.
type Store interface {
	Create(ctx context.Context, doc *models.IncomeDocument) error
	Find(ctx context.Context, docID id.DocumentID) (*models.IncomeDocument, error)
	Delete(ctx context.Context, docID id.DocumentID) error
	ListByResident(ctx context.Context, residentID id.ResidentID) ([]*models.IncomeDocument, error)
	ApplyAnalysis(ctx context.Context, docID id.DocumentID, mutate func(*models.IncomeDocument)) (*models.IncomeDocument, bool, error)
}

// VerificationReader loads the verification a document attaches to.
type VerificationReader interface {
	Find(ctx context.Context, verificationID id.VerificationID) (*vermodels.IncomeVerification, error)
}

// ResidentReader loads residents for membership and name checks.
type ResidentReader interface {
	Find(ctx context.Context, residentID id.ResidentID) (*resmodels.Resident, error)
}

// IncomeRecomputer resums the resident's income after a document change.
type IncomeRecomputer interface {
	RecordDocumentIncome(ctx context.Context, residentID id.ResidentID) (*resmodels.Resident, error)
}

// LeaseAuthorizer resolves lease ownership and enforces the caller's access.
type LeaseAuthorizer interface {
	AuthorizeLease(ctx context.Context, leaseID id.LeaseID) (*propmodels.LeaseRef, error)
}

// OverrideFiler files and withdraws DOCUMENT_REVIEW exception tickets.
type OverrideFiler interface {
	Create(ctx context.Context, reqType omodels.RequestType, targetKey, explanation string) (*omodels.OverrideRequest, error)
	WithdrawPending(ctx context.Context, reqType omodels.RequestType, targetKey string) error
}

// Service owns the income document lifecycle.
type Service struct {
	store         Store
	verifications VerificationReader
	residents     ResidentReader
	recomputer    IncomeRecomputer
	leases        LeaseAuthorizer
	analyzer      analysis.Submitter
	overrides     OverrideFiler
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(store Store, verifications VerificationReader, residents ResidentReader, recomputer IncomeRecomputer, leases LeaseAuthorizer, analyzer analysis.Submitter, overrides OverrideFiler, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:         store,
		verifications: verifications,
		residents:     residents,
		recomputer:    recomputer,
		leases:        leases,
		analyzer:      analyzer,
		overrides:     overrides,
		metrics:       m,
		logger:        logger,
	}
}

// Upload attaches a document to a verification and queues it for analysis.
// The document starts in PROCESSING; a failed hand-off to the analyzer is
// not an upload failure, because the staleness sweep recovers stuck work.
func (s *Service) Upload(ctx context.Context, verificationID id.VerificationID, residentID id.ResidentID, docType models.Type, fileRef string) (*models.IncomeDocument, error) {
	switch docType {
	case models.TypeW2, models.TypePaystub, models.TypeBankStatement,
		models.TypeOfferLetter, models.TypeSocialSecurity, models.TypeSSA1099:
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown document type").
			WithDetail("type", string(docType))
	}

	verification, err := s.verifications.Find(ctx, verificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	if _, err := s.leases.AuthorizeLease(ctx, verification.LeaseID); err != nil {
		return nil, err
	}
	if verification.Status != vermodels.StatusInProgress {
		return nil, dErrors.New(dErrors.CodeInvalidState, "verification is not in progress")
	}
	resident, err := s.residents.Find(ctx, residentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "resident not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load resident")
	}
	if resident.LeaseID != verification.LeaseID {
		return nil, dErrors.New(dErrors.CodeValidation, "resident does not belong to the verification's lease")
	}

	doc := &models.IncomeDocument{
		ID:             id.NewDocumentID(),
		ResidentID:     residentID,
		VerificationID: verificationID,
		Type:           docType,
		Status:         models.StatusProcessing,
		UploadDate:     requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}
	if s.metrics != nil {
		s.metrics.IncrementUploaded()
	}

	if err := s.analyzer.Submit(ctx, doc.ID, string(docType), fileRef); err != nil {
		s.logger.WarnContext(ctx, "analysis submission failed, sweep will recover",
			"error", err,
			"document_id", doc.ID,
		)
	}
	s.logger.InfoContext(ctx, "document uploaded",
		"document_id", doc.ID,
		"resident_id", residentID,
		"verification_id", verificationID,
		"type", docType,
		"request_id", requestcontext.RequestID(ctx),
	)
	return doc, nil
}

// AnalysisResult is the analyzer callback payload.
type AnalysisResult struct {
	Fields models.ExtractedFields
	// Failed marks an analysis that produced no usable fields.
	Failed bool
	Error  string
}

// RecordAnalysis applies an analyzer result. Idempotent: redelivery against
// a document that already left PROCESSING returns the document unchanged.
// The outcome is COMPLETED with a computed annual figure, or NEEDS_REVIEW
// with a reason (failed analysis, name mismatch, uncomputable income).
func (s *Service) RecordAnalysis(ctx context.Context, docID id.DocumentID, result AnalysisResult) (*models.IncomeDocument, error) {
	existing, err := s.store.Find(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	resident, err := s.residents.Find(ctx, existing.ResidentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load resident")
	}

	now := requestcontext.Now(ctx)
	doc, applied, err := s.store.ApplyAnalysis(ctx, docID, func(d *models.IncomeDocument) {
		d.Fields = result.Fields
		d.AnalyzedAt = &now
		switch {
		case result.Failed:
			d.Status = models.StatusNeedsReview
			d.ReviewReason = reviewReason(ReasonAnalysisFailed, result.Error)
		case !analysis.MatchName(resident.FullName(), result.Fields.Name):
			d.Status = models.StatusNeedsReview
			d.ReviewReason = ReasonNameMismatch
		default:
			annualized, ok := income.Annualize(d.Type, result.Fields)
			if !ok {
				d.Status = models.StatusNeedsReview
				d.ReviewReason = ReasonIncomeUncomputed
				return
			}
			d.Status = models.StatusCompleted
			d.CalculatedAnnualizedIncome = annualized
		}
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record analysis")
	}
	if !applied {
		return doc, nil
	}
	if s.metrics != nil {
		s.metrics.IncrementAnalysisRecorded(string(doc.Status))
	}

	switch doc.Status {
	case models.StatusCompleted:
		if _, err := s.recomputer.RecordDocumentIncome(ctx, doc.ResidentID); err != nil {
			s.logger.ErrorContext(ctx, "income recomputation failed",
				"error", err,
				"resident_id", doc.ResidentID,
			)
		}
	case models.StatusNeedsReview:
		s.fileReview(ctx, doc)
	}

	s.logger.InfoContext(ctx, "analysis recorded",
		"document_id", docID,
		"status", doc.Status,
		"review_reason", doc.ReviewReason,
		"request_id", requestcontext.RequestID(ctx),
	)
	return doc, nil
}

// Delete removes a document and resums the resident's income. The deletion
// commits even when recomputation fails; the sweep or the next document
// mutation repairs the total.
func (s *Service) Delete(ctx context.Context, docID id.DocumentID) error {
	doc, err := s.store.Find(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	verification, err := s.verifications.Find(ctx, doc.VerificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "verification not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	if _, err := s.leases.AuthorizeLease(ctx, verification.LeaseID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, docID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete document")
	}

	// The pending review ask, if any, is moot once the document is gone.
	if err := s.overrides.WithdrawPending(ctx, omodels.TypeDocumentReview, omodels.TargetDocument(docID)); err != nil {
		s.logger.WarnContext(ctx, "failed to withdraw document review request",
			"error", err,
			"document_id", docID,
		)
	}

	if _, err := s.recomputer.RecordDocumentIncome(ctx, doc.ResidentID); err != nil {
		s.logger.ErrorContext(ctx, "income recomputation failed after delete",
			"error", err,
			"resident_id", doc.ResidentID,
		)
	}

	s.logger.InfoContext(ctx, "document deleted",
		"document_id", docID,
		"resident_id", doc.ResidentID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Get returns a document after an ownership check through its verification.
func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*models.IncomeDocument, error) {
	doc, err := s.store.Find(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	verification, err := s.verifications.Find(ctx, doc.VerificationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	if _, err := s.leases.AuthorizeLease(ctx, verification.LeaseID); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListByResident returns a resident's documents, oldest upload first,
// after an ownership check through the resident's lease.
func (s *Service) ListByResident(ctx context.Context, residentID id.ResidentID) ([]*models.IncomeDocument, error) {
	resident, err := s.residents.Find(ctx, residentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "resident not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load resident")
	}
	if _, err := s.leases.AuthorizeLease(ctx, resident.LeaseID); err != nil {
		return nil, err
	}
	out, err := s.store.ListByResident(ctx, residentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return out, nil
}

// fileReview files the deduplicated DOCUMENT_REVIEW ask for a
// needs-review document.
func (s *Service) fileReview(ctx context.Context, doc *models.IncomeDocument) {
	_, err := s.overrides.Create(ctx, omodels.TypeDocumentReview, omodels.TargetDocument(doc.ID), doc.ReviewReason)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to file document review request",
			"error", err,
			"document_id", doc.ID,
		)
	}
}

func reviewReason(base, detail string) string {
	if detail == "" {
		return base
	}
	return base + ": " + detail
}
