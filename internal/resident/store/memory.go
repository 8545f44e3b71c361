package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"veristay/internal/resident/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
)

// Memory stores residents in memory for tests/dev.
type Memory struct {
	mu        sync.RWMutex
	residents map[id.ResidentID]*models.Resident
}

func NewMemory() *Memory {
	return &Memory{residents: make(map[id.ResidentID]*models.Resident)}
}

func (s *Memory) Create(_ context.Context, r *models.Resident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.residents[r.ID]; ok {
		return fmt.Errorf("resident %s exists: %w", r.ID, sentinel.ErrConflict)
	}
	cp := *r
	s.residents[r.ID] = &cp
	return nil
}

func (s *Memory) Find(_ context.Context, residentID id.ResidentID) (*models.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.residents[residentID]
	if !ok {
		return nil, fmt.Errorf("resident not found: %w", sentinel.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *Memory) ListByLease(_ context.Context, leaseID id.LeaseID) ([]*models.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Resident
	for _, r := range s.residents {
		if r.LeaseID == leaseID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Execute validates and mutates a resident atomically under the store lock,
// so per-resident transitions cannot interleave.
func (s *Memory) Execute(_ context.Context, residentID id.ResidentID, validate func(*models.Resident) error, mutate func(*models.Resident)) (*models.Resident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.residents[residentID]
	if !ok {
		return nil, fmt.Errorf("resident not found: %w", sentinel.ErrNotFound)
	}
	if validate != nil {
		if err := validate(r); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(r)
	}
	cp := *r
	return &cp, nil
}
