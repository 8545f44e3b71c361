package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"veristay/internal/property/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
)

// Memory keeps properties, units, and leases in memory for tests/dev.
//
// Error contract (all stores):
// - Return sentinel.ErrNotFound when the requested entity does not exist
// - Return sentinel.ErrConflict on uniqueness violations
// - Return wrapped errors with context for infrastructure failures
type Memory struct {
	mu         sync.RWMutex
	properties map[id.PropertyID]*models.Property
	units      map[id.UnitID]*models.Unit
	leases     map[id.LeaseID]*models.Lease
}

func NewMemory() *Memory {
	return &Memory{
		properties: make(map[id.PropertyID]*models.Property),
		units:      make(map[id.UnitID]*models.Unit),
		leases:     make(map[id.LeaseID]*models.Lease),
	}
}

func (s *Memory) CreateProperty(_ context.Context, p *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.properties[p.ID]; ok {
		return fmt.Errorf("property %s exists: %w", p.ID, sentinel.ErrConflict)
	}
	cp := *p
	s.properties[p.ID] = &cp
	return nil
}

func (s *Memory) FindProperty(_ context.Context, propertyID id.PropertyID) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPropertyLocked(propertyID)
}

func (s *Memory) findPropertyLocked(propertyID id.PropertyID) (*models.Property, error) {
	p, ok := s.properties[propertyID]
	if !ok || p.DeletedAt != nil {
		return nil, fmt.Errorf("property not found: %w", sentinel.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// DeleteProperty soft-deletes the property and removes its provisional
// leases. Leases with a tenancy link are left untouched; callers must not
// reach this point while any exist.
func (s *Memory) DeleteProperty(_ context.Context, propertyID id.PropertyID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[propertyID]
	if !ok || p.DeletedAt != nil {
		return fmt.Errorf("property not found: %w", sentinel.ErrNotFound)
	}
	for leaseID, lease := range s.leases {
		unit, ok := s.units[lease.UnitID]
		if !ok || unit.PropertyID != propertyID {
			continue
		}
		if lease.Provisional() {
			delete(s.leases, leaseID)
		}
	}
	p.DeletedAt = &now
	p.UpdatedAt = now
	return nil
}

func (s *Memory) CreateUnit(_ context.Context, u *models.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.units {
		if existing.PropertyID == u.PropertyID && existing.Label == u.Label {
			return fmt.Errorf("unit label %q taken: %w", u.Label, sentinel.ErrConflict)
		}
	}
	cp := *u
	s.units[u.ID] = &cp
	return nil
}

func (s *Memory) FindUnit(_ context.Context, unitID id.UnitID) (*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[unitID]
	if !ok {
		return nil, fmt.Errorf("unit not found: %w", sentinel.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Memory) FindUnitByLabel(_ context.Context, propertyID id.PropertyID, label string) (*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.units {
		if u.PropertyID == propertyID && u.Label == label {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("unit not found: %w", sentinel.ErrNotFound)
}

func (s *Memory) CreateLease(_ context.Context, l *models.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[l.UnitID]; !ok {
		return fmt.Errorf("unit not found: %w", sentinel.ErrNotFound)
	}
	cp := *l
	s.leases[l.ID] = &cp
	return nil
}

func (s *Memory) FindLease(_ context.Context, leaseID id.LeaseID) (*models.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leases[leaseID]
	if !ok {
		return nil, fmt.Errorf("lease not found: %w", sentinel.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *Memory) ListLeasesByUnit(_ context.Context, unitID id.UnitID) ([]*models.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Lease
	for _, l := range s.leases {
		if l.UnitID == unitID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

// LinkTenancy attaches a rent-roll tenancy to a lease, ending its
// provisional state. Idempotent on re-ingestion of the same snapshot.
func (s *Memory) LinkTenancy(_ context.Context, leaseID id.LeaseID, tenancy models.Tenancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[leaseID]
	if !ok {
		return fmt.Errorf("lease not found: %w", sentinel.ErrNotFound)
	}
	l.Tenancy = &tenancy
	return nil
}

// ResolveLease walks lease → unit → property and returns the ownership
// chain used for authorization.
func (s *Memory) ResolveLease(_ context.Context, leaseID id.LeaseID) (*models.LeaseRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leases[leaseID]
	if !ok {
		return nil, fmt.Errorf("lease not found: %w", sentinel.ErrNotFound)
	}
	u, ok := s.units[l.UnitID]
	if !ok {
		return nil, fmt.Errorf("unit not found: %w", sentinel.ErrNotFound)
	}
	p, err := s.findPropertyLocked(u.PropertyID)
	if err != nil {
		return nil, err
	}
	return &models.LeaseRef{
		LeaseID:     l.ID,
		UnitID:      u.ID,
		PropertyID:  p.ID,
		OwnerID:     p.OwnerID,
		Provisional: l.Provisional(),
	}, nil
}
