package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"veristay/internal/rentroll/models"
	id "veristay/pkg/domain"
	"veristay/pkg/platform/sentinel"
)

// Memory keeps rent-roll snapshots in memory for tests/dev.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[id.SnapshotID]*models.Snapshot
}

func NewMemory() *Memory {
	return &Memory{snapshots: make(map[id.SnapshotID]*models.Snapshot)}
}

func (s *Memory) Create(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[snap.ID]; ok {
		return fmt.Errorf("snapshot %s exists: %w", snap.ID, sentinel.ErrConflict)
	}
	cp := *snap
	cp.Rows = append([]models.SnapshotRow(nil), snap.Rows...)
	s.snapshots[snap.ID] = &cp
	return nil
}

func (s *Memory) Find(_ context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotID]
	if !ok {
		return nil, fmt.Errorf("snapshot not found: %w", sentinel.ErrNotFound)
	}
	cp := *snap
	cp.Rows = append([]models.SnapshotRow(nil), snap.Rows...)
	return &cp, nil
}

// ListByProperty returns a property's snapshots, newest ingestion first.
func (s *Memory) ListByProperty(_ context.Context, propertyID id.PropertyID) ([]*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Snapshot
	for _, snap := range s.snapshots {
		if snap.PropertyID != propertyID {
			continue
		}
		cp := *snap
		cp.Rows = append([]models.SnapshotRow(nil), snap.Rows...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IngestedAt.After(out[j].IngestedAt)
	})
	return out, nil
}

func (s *Memory) Delete(_ context.Context, snapshotID id.SnapshotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[snapshotID]; !ok {
		return fmt.Errorf("snapshot not found: %w", sentinel.ErrNotFound)
	}
	delete(s.snapshots, snapshotID)
	return nil
}
