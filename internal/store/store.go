// Package store journals SFC records (request plus allocation) so that
// finished chains stay queryable after they leave the live engine state.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status domain.SFCStatus
	Limit  int
}

// Store persists SFC records keyed by instance id.
type Store interface {
	Save(ctx context.Context, rec domain.SFCRecord) error
	Get(ctx context.Context, id string) (domain.SFCRecord, error)
	List(ctx context.Context, f Filter) ([]domain.SFCRecord, error)
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.SFCRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.SFCRecord)}
}

func (s *MemoryStore) Save(_ context.Context, rec domain.SFCRecord) error {
	if rec.Instance == nil || rec.Instance.ID == "" {
		return apperrors.ErrInvalidRequestFieldf("instance.id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Instance.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.SFCRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.SFCRecord{}, apperrors.ErrSFCNotFoundf(id)
	}
	return cloneRecord(rec), nil
}

// List returns matching records oldest first.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]domain.SFCRecord, error) {
	s.mu.RLock()
	out := make([]domain.SFCRecord, 0, len(s.records))
	for _, rec := range s.records {
		if f.Status != "" && rec.Instance.Status != f.Status {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	s.mu.RUnlock()

	sortRecords(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortRecords(recs []domain.SFCRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].Instance, recs[j].Instance
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func cloneRecord(rec domain.SFCRecord) domain.SFCRecord {
	return domain.SFCRecord{Request: rec.Request.Clone(), Instance: rec.Instance.Clone()}
}
