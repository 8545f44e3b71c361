package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"veristay/internal/verification/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
)

// Memory stores verifications in memory for tests/dev.
type Memory struct {
	mu            sync.RWMutex
	verifications map[id.VerificationID]*models.IncomeVerification
}

func NewMemory() *Memory {
	return &Memory{verifications: make(map[id.VerificationID]*models.IncomeVerification)}
}

// Create inserts a verification. The one-IN_PROGRESS-per-unit invariant is
// checked under the same lock as the insert, so two concurrent creates for
// the same unit cannot both pass.
func (s *Memory) Create(_ context.Context, v *models.IncomeVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.verifications {
		if existing.UnitID == v.UnitID && existing.Status == models.StatusInProgress {
			return fmt.Errorf("unit %s has an in-progress verification: %w", v.UnitID, sentinel.ErrConflict)
		}
	}
	cp := *v
	s.verifications[v.ID] = &cp
	return nil
}

func (s *Memory) Find(_ context.Context, verificationID id.VerificationID) (*models.IncomeVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifications[verificationID]
	if !ok {
		return nil, fmt.Errorf("verification not found: %w", sentinel.ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

func (s *Memory) ListByLease(_ context.Context, leaseID id.LeaseID) ([]*models.IncomeVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.IncomeVerification
	for _, v := range s.verifications {
		if v.LeaseID == leaseID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Memory) Delete(_ context.Context, verificationID id.VerificationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verifications[verificationID]; !ok {
		return fmt.Errorf("verification not found: %w", sentinel.ErrNotFound)
	}
	delete(s.verifications, verificationID)
	return nil
}

// Execute validates and mutates a verification atomically under the store
// lock. Status transitions go through here so the status check and the
// write cannot be split by a concurrent caller.
func (s *Memory) Execute(_ context.Context, verificationID id.VerificationID, validate func(*models.IncomeVerification) error, mutate func(*models.IncomeVerification)) (*models.IncomeVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[verificationID]
	if !ok {
		return nil, fmt.Errorf("verification not found: %w", sentinel.ErrNotFound)
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(v)
	}
	cp := *v
	return &cp, nil
}

// HasInProgressForProperty reports whether any verification under the
// property is still IN_PROGRESS. Property deletion is gated on this.
func (s *Memory) HasInProgressForProperty(_ context.Context, propertyID id.PropertyID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.verifications {
		if v.PropertyID == propertyID && v.Status == models.StatusInProgress {
			return true, nil
		}
	}
	return false, nil
}
