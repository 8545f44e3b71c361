package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"veristay/internal/override/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
)

// Memory stores override requests and unit-count discrepancies in memory
// for tests/dev.
type Memory struct {
	mu            sync.RWMutex
	requests      map[id.OverrideID]*models.OverrideRequest
	discrepancies map[id.DiscrepancyID]*models.UnitCountDiscrepancy
}

func NewMemory() *Memory {
	return &Memory{
		requests:      make(map[id.OverrideID]*models.OverrideRequest),
		discrepancies: make(map[id.DiscrepancyID]*models.UnitCountDiscrepancy),
	}
}

// CreateRequest inserts the request unless a PENDING one for the same
// (type, target) already exists, in which case that one is returned. The
// lookup and the insert happen under one lock so concurrent creators
// cannot both win.
func (s *Memory) CreateRequest(_ context.Context, req *models.OverrideRequest) (*models.OverrideRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.Type == req.Type && existing.TargetKey == req.TargetKey && existing.Pending() {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *req
	s.requests[req.ID] = &cp
	out := cp
	return &out, true, nil
}

func (s *Memory) FindRequest(_ context.Context, overrideID id.OverrideID) (*models.OverrideRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[overrideID]
	if !ok {
		return nil, fmt.Errorf("override request not found: %w", sentinel.ErrNotFound)
	}
	cp := *req
	return &cp, nil
}

func (s *Memory) ListPendingRequests(_ context.Context) ([]*models.OverrideRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.OverrideRequest
	for _, req := range s.requests {
		if req.Pending() {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ExecuteRequest validates and mutates an override request atomically
// under the store lock.
func (s *Memory) ExecuteRequest(_ context.Context, overrideID id.OverrideID, validate func(*models.OverrideRequest) error, mutate func(*models.OverrideRequest)) (*models.OverrideRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[overrideID]
	if !ok {
		return nil, fmt.Errorf("override request not found: %w", sentinel.ErrNotFound)
	}
	if validate != nil {
		if err := validate(req); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(req)
	}
	cp := *req
	return &cp, nil
}

// DeletePendingRequest removes the PENDING request for (type, target) if
// one exists. Used when the target itself goes away.
func (s *Memory) DeletePendingRequest(_ context.Context, reqType models.RequestType, targetKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for reqID, req := range s.requests {
		if req.Type == reqType && req.TargetKey == targetKey && req.Pending() {
			delete(s.requests, reqID)
			return nil
		}
	}
	return nil
}

// CreateDiscrepancy inserts the discrepancy unless a PENDING one for the
// property already exists, in which case that one is returned.
func (s *Memory) CreateDiscrepancy(_ context.Context, d *models.UnitCountDiscrepancy) (*models.UnitCountDiscrepancy, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.discrepancies {
		if existing.PropertyID == d.PropertyID && existing.Status == models.DiscrepancyPending {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *d
	s.discrepancies[d.ID] = &cp
	out := cp
	return &out, true, nil
}

func (s *Memory) FindDiscrepancy(_ context.Context, discrepancyID id.DiscrepancyID) (*models.UnitCountDiscrepancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.discrepancies[discrepancyID]
	if !ok {
		return nil, fmt.Errorf("discrepancy not found: %w", sentinel.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (s *Memory) ListPendingDiscrepancies(_ context.Context) ([]*models.UnitCountDiscrepancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.UnitCountDiscrepancy
	for _, d := range s.discrepancies {
		if d.Status == models.DiscrepancyPending {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ExecuteDiscrepancy validates and mutates a discrepancy atomically under
// the store lock.
func (s *Memory) ExecuteDiscrepancy(_ context.Context, discrepancyID id.DiscrepancyID, validate func(*models.UnitCountDiscrepancy) error, mutate func(*models.UnitCountDiscrepancy)) (*models.UnitCountDiscrepancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discrepancies[discrepancyID]
	if !ok {
		return nil, fmt.Errorf("discrepancy not found: %w", sentinel.ErrNotFound)
	}
	if validate != nil {
		if err := validate(d); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(d)
	}
	cp := *d
	return &cp, nil
}
