// Package sweep recovers documents stuck in PROCESSING. Analysis results
// arrive via an external callback that can be lost; the sweep is the
// mechanism that turns silence into NEEDS_REVIEW instead of leaving
// documents in limbo.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"veristay/internal/document/metrics"
	"veristay/internal/document/models"
	omodels "veristay/internal/override/models"
)

// Store is the slice of the document store the sweep drives.
type Store interface {
	MarkStaleProcessing(ctx context.Context, cutoff time.Time, reason string) ([]*models.IncomeDocument, error)
	ListNeedsReview(ctx context.Context) ([]*models.IncomeDocument, error)
}

// OverrideFiler files the deduplicated review ask for each swept document.
type OverrideFiler interface {
	Create(ctx context.Context, reqType omodels.RequestType, targetKey, explanation string) (*omodels.OverrideRequest, error)
}

// StaleReason is recorded on documents the sweep forces to NEEDS_REVIEW.
const StaleReason = "analysis did not complete within the staleness window"

// Sweeper periodically moves stale PROCESSING documents to NEEDS_REVIEW
// and makes sure every NEEDS_REVIEW document has its DOCUMENT_REVIEW
// request on file. Both steps are re-entrant: a second run over the same
// state changes nothing.
type Sweeper struct {
	store     Store
	overrides OverrideFiler
	interval  time.Duration
	threshold time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(store Store, overrides OverrideFiler, interval, threshold time.Duration, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		overrides: overrides,
		interval:  interval,
		threshold: threshold,
		metrics:   m,
		logger:    logger,
	}
}

// Run sweeps on the configured interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one sweep pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.threshold)
	moved, err := s.store.MarkStaleProcessing(ctx, cutoff, StaleReason)
	if err != nil {
		s.logger.ErrorContext(ctx, "stale document sweep failed", "error", err)
		return
	}
	if len(moved) > 0 {
		if s.metrics != nil {
			s.metrics.AddSwept(len(moved))
		}
		s.logger.InfoContext(ctx, "stale documents moved to needs-review",
			"count", len(moved),
			"cutoff", cutoff,
		)
	}

	needsReview, err := s.store.ListNeedsReview(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "needs-review listing failed", "error", err)
		return
	}
	for _, doc := range needsReview {
		_, err := s.overrides.Create(ctx, omodels.TypeDocumentReview, omodels.TargetDocument(doc.ID), doc.ReviewReason)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to file document review request",
				"error", err,
				"document_id", doc.ID,
			)
		}
	}
}
