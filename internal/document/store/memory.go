package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"veristay/internal/document/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
)

// Memory stores income documents in memory for tests/dev.
type Memory struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.IncomeDocument
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[id.DocumentID]*models.IncomeDocument)}
}

func (s *Memory) Create(_ context.Context, doc *models.IncomeDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("document %s exists: %w", doc.ID, sentinel.ErrConflict)
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *Memory) Find(_ context.Context, docID id.DocumentID) (*models.IncomeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (s *Memory) Delete(_ context.Context, docID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[docID]; !ok {
		return fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	delete(s.docs, docID)
	return nil
}

func (s *Memory) ListByResident(_ context.Context, residentID id.ResidentID) ([]*models.IncomeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.IncomeDocument
	for _, doc := range s.docs {
		if doc.ResidentID == residentID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sortByUpload(out)
	return out, nil
}

func (s *Memory) ListCompletedByResident(_ context.Context, residentID id.ResidentID) ([]*models.IncomeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.IncomeDocument
	for _, doc := range s.docs {
		if doc.ResidentID == residentID && doc.Status == models.StatusCompleted {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sortByUpload(out)
	return out, nil
}

func (s *Memory) CountByVerification(_ context.Context, verificationID id.VerificationID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, doc := range s.docs {
		if doc.VerificationID == verificationID {
			count++
		}
	}
	return count, nil
}

// ApplyAnalysis transitions the document out of PROCESSING via the mutate
// callback, under lock. Returns applied=false without mutating when the
// document already reached a terminal status, which makes analysis
// recording idempotent under redelivery.
func (s *Memory) ApplyAnalysis(_ context.Context, docID id.DocumentID, mutate func(*models.IncomeDocument)) (*models.IncomeDocument, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, false, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	if doc.Status != models.StatusProcessing {
		cp := *doc
		return &cp, false, nil
	}
	mutate(doc)
	cp := *doc
	return &cp, true, nil
}

// MarkStaleProcessing moves documents stuck in PROCESSING since before the
// cutoff to NEEDS_REVIEW and returns them. Safe to run repeatedly.
func (s *Memory) MarkStaleProcessing(_ context.Context, cutoff time.Time, reason string) ([]*models.IncomeDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []*models.IncomeDocument
	for _, doc := range s.docs {
		if doc.Status == models.StatusProcessing && doc.UploadDate.Before(cutoff) {
			doc.Status = models.StatusNeedsReview
			doc.ReviewReason = reason
			cp := *doc
			moved = append(moved, &cp)
		}
	}
	sortByUpload(moved)
	return moved, nil
}

func (s *Memory) ListNeedsReview(_ context.Context) ([]*models.IncomeDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.IncomeDocument
	for _, doc := range s.docs {
		if doc.Status == models.StatusNeedsReview {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sortByUpload(out)
	return out, nil
}

func sortByUpload(docs []*models.IncomeDocument) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadDate.Before(docs[j].UploadDate)
	})
}
