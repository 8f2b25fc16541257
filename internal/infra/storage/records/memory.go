package records

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
)

// MemoryStore is the in-process repository implementation: a guarded map
// with TTL-based eviction of terminal records. It backs tests and the
// default single-node deployment.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.AnalysisID]*domain.AnalysisRecord
	byHash  map[string]domain.AnalysisID
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a store evicting terminal records ttl after
// completion. A non-positive ttl disables eviction.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: map[domain.AnalysisID]*domain.AnalysisRecord{},
		byHash:  map[string]domain.AnalysisID{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetNowFunc overrides the time source, for expiry tests.
func (s *MemoryStore) SetNowFunc(now func() time.Time) { s.now = now }

func (s *MemoryStore) Create(_ context.Context, r *domain.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r.Clone()
	s.byHash[r.File.Hash] = r.ID
	return nil
}

// CreateIfAbsent checks the hash index and inserts under one lock hold,
// so concurrent submissions of the same file resolve to a single record.
func (s *MemoryStore) CreateIfAbsent(_ context.Context, r *domain.AnalysisRecord) (*domain.AnalysisRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[r.File.Hash]; ok {
		if existing, ok := s.records[id]; ok && !s.expired(existing) {
			return existing.Clone(), false, nil
		}
	}
	s.records[r.ID] = r.Clone()
	s.byHash[r.File.Hash] = r.ID
	return r.Clone(), true, nil
}

// Update applies the merge function under the store lock and replaces the
// stored record wholesale, so concurrent partial updates never interleave
// field writes.
func (s *MemoryStore) Update(_ context.Context, id domain.AnalysisID, apply func(*domain.AnalysisRecord) error) (*domain.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[id]
	if !ok || s.expired(cur) {
		return nil, domain.ErrNotFound
	}
	next := cur.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}
	s.records[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.AnalysisID) (*domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok || s.expired(r) {
		return nil, domain.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) GetByFileHash(_ context.Context, hash string) (*domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	r, ok := s.records[id]
	if !ok || s.expired(r) {
		return nil, domain.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Latest(_ context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AnalysisRecord
	for _, r := range s.records {
		if !s.expired(r) {
			out = append(out, r.Clone())
		}
	}
	sortByInitiatedDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteExpired removes every evictable record and returns the count.
func (s *MemoryStore) DeleteExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, r := range s.records {
		if s.expired(r) {
			delete(s.records, id)
			if s.byHash[r.File.Hash] == id {
				delete(s.byHash, r.File.Hash)
			}
			removed++
		}
	}
	return removed, nil
}

// expired reports whether a terminal record has outlived the TTL. In-flight
// records are never evicted.
func (s *MemoryStore) expired(r *domain.AnalysisRecord) bool {
	if s.ttl <= 0 || !r.Status.Terminal() || r.CompletedAt == nil {
		return false
	}
	return s.now().Sub(*r.CompletedAt) > s.ttl
}

func sortByInitiatedDesc(rs []*domain.AnalysisRecord) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].InitiatedAt.After(rs[j].InitiatedAt)
	})
}
