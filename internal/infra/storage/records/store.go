package records

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"

	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
)

// SQLRepository is the durable backend behind the cached store. One
// implementation exists per configured driver (sqlite, mysql, postgres).
type SQLRepository interface {
	Insert(ctx context.Context, r *domain.AnalysisRecord) error
	Replace(ctx context.Context, r *domain.AnalysisRecord) error
	Get(ctx context.Context, id domain.AnalysisID) (*domain.AnalysisRecord, error)
	GetByFileHash(ctx context.Context, hash string) (*domain.AnalysisRecord, error)
	Latest(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store layers a ristretto TTL cache over a SQL repository and serializes
// per-record updates, implementing the repository's replace-or-merge rule.
type Store struct {
	repo  SQLRepository
	cache *ristretto.Cache
	ttl   time.Duration
	log   *logrus.Logger

	mu    sync.Mutex
	locks map[string]*recordLock
}

// recordLock is a refcounted per-key mutex. The entry stays in the map
// until the last holder releases it, so every concurrent caller for one
// key always contends on the same mutex.
type recordLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore builds the cached store. ttl bounds both the cache entries and
// the retention of completed rows swept by the janitor.
func NewStore(repo SQLRepository, ttl time.Duration, log *logrus.Logger) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		log:   log,
		locks: map[string]*recordLock{},
	}, nil
}

func (s *Store) acquire(key string) *recordLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &recordLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store) release(key string, l *recordLock) {
	l.mu.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

func (s *Store) cachePut(r *domain.AnalysisRecord) {
	s.cache.SetWithTTL(string(r.ID), r.Clone(), 1, s.cacheTTL())
}

func (s *Store) cacheTTL() time.Duration {
	if s.ttl > 0 {
		return s.ttl
	}
	return time.Hour
}

func (s *Store) Create(ctx context.Context, r *domain.AnalysisRecord) error {
	if err := s.repo.Insert(ctx, r); err != nil {
		return err
	}
	s.cachePut(r)
	return nil
}

// CreateIfAbsent serializes on a per-hash lock so two concurrent
// submissions of the same file resolve to a single inserted row.
func (s *Store) CreateIfAbsent(ctx context.Context, r *domain.AnalysisRecord) (*domain.AnalysisRecord, bool, error) {
	key := "hash:" + r.File.Hash
	l := s.acquire(key)
	defer s.release(key, l)

	existing, err := s.GetByFileHash(ctx, r.File.Hash)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		return nil, false, err
	}
	s.cachePut(r)
	return r.Clone(), true, nil
}

func (s *Store) Update(ctx context.Context, id domain.AnalysisID, apply func(*domain.AnalysisRecord) error) (*domain.AnalysisRecord, error) {
	key := string(id)
	l := s.acquire(key)
	defer s.release(key, l)

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}
	if err := s.repo.Replace(ctx, next); err != nil {
		return nil, err
	}
	s.cachePut(next)
	return next.Clone(), nil
}

func (s *Store) Get(ctx context.Context, id domain.AnalysisID) (*domain.AnalysisRecord, error) {
	if v, ok := s.cache.Get(string(id)); ok {
		if r, ok := v.(*domain.AnalysisRecord); ok && !s.expired(r) {
			return r.Clone(), nil
		}
	}
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id domain.AnalysisID) (*domain.AnalysisRecord, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || s.expired(r) {
		return nil, domain.ErrNotFound
	}
	s.cachePut(r)
	return r, nil
}

// GetByFileHash filters expired rows the janitor has not swept yet, so
// dedup never reuses a record past its retention window.
func (s *Store) GetByFileHash(ctx context.Context, hash string) (*domain.AnalysisRecord, error) {
	r, err := s.repo.GetByFileHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if r == nil || s.expired(r) {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

// expired reports whether a terminal record has outlived the TTL.
// In-flight records never expire.
func (s *Store) expired(r *domain.AnalysisRecord) bool {
	if s.ttl <= 0 || !r.Status.Terminal() || r.CompletedAt == nil {
		return false
	}
	return time.Since(*r.CompletedAt) > s.ttl
}

func (s *Store) Latest(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	return s.repo.Latest(ctx, limit)
}

// DeleteExpired sweeps completed rows older than the TTL. Cache entries
// carry their own TTL and need no sweeping.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	return s.repo.DeleteCompletedBefore(ctx, time.Now().Add(-s.ttl))
}

// StartJanitor runs DeleteExpired on the given interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.DeleteExpired(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					s.log.WithError(err).Warn("record eviction sweep failed")
				} else if n > 0 {
					s.log.WithField("evicted", n).Debug("expired analysis records removed")
				}
			}
		}
	}()
}
