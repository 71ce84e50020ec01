// Package store persists generated plans for authenticated callers.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kjstillabower/daymate-service/internal/models"
)

// Backend names accepted by config.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// ErrInvalidRecord is returned by Save for records missing an ID or owner.
var ErrInvalidRecord = errors.New("invalid plan record")

// PlanStore saves plan records and reads them back per owner, newest first.
// Records are never updated after Save.
type PlanStore interface {
	Save(ctx context.Context, rec models.PlanRecord) error
	FindByOwner(ctx context.Context, ownerID string) ([]models.PlanRecord, error)
	Close() error
}

func checkRecord(rec models.PlanRecord) error {
	if rec.ID == "" || rec.OwnerID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// sortNewestFirst orders by CreatedAt descending. Ties keep insertion order
// reversed so the later write wins.
func sortNewestFirst(recs []models.PlanRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}

// MemoryStore is a PlanStore held in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	byOwner map[string][]models.PlanRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOwner: make(map[string][]models.PlanRecord)}
}

// Save appends rec to its owner's history.
func (s *MemoryStore) Save(ctx context.Context, rec models.PlanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOwner[rec.OwnerID] = append(s.byOwner[rec.OwnerID], rec)
	return nil
}

// FindByOwner returns a copy of the owner's records, newest first.
func (s *MemoryStore) FindByOwner(ctx context.Context, ownerID string) ([]models.PlanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	src := s.byOwner[ownerID]
	out := make([]models.PlanRecord, len(src))
	for i := range src {
		out[len(src)-1-i] = src[i]
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
