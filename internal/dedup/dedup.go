package dedup

import (
	"sort"
	"sync"
	"time"

	"github.com/fystack/nft-activity-indexer/pkg/common/enum"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
)

// evictTarget is the fill ratio the store shrinks to when it overflows,
// so eviction happens in bursts instead of on every insert.
const evictTarget = 0.8

type entry struct {
	outcome  enum.DedupOutcome
	markedAt time.Time
	errs     []string
}

// Store is an in-memory processed-transaction registry. It trades
// completeness for boundedness: entries beyond capacity or TTL are
// forgotten and their transactions would be reprocessed, which the
// storage layer's unique constraint absorbs.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	maxSize int
	ttl     time.Duration

	stopOnce sync.Once
	quit     chan struct{}
}

func New(maxSize int, ttl time.Duration) *Store {
	s := &Store{
		entries: make(map[string]entry),
		maxSize: maxSize,
		ttl:     ttl,
		quit:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// IsDuplicate reports whether the key was marked, regardless of outcome.
// Failed transactions are duplicates too: retrying them is the queue's
// job, not the pipeline's.
func (s *Store) IsDuplicate(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *Store) MarkProcessed(key string) {
	s.mark(key, enum.DedupOutcomeProcessed, nil)
}

func (s *Store) MarkFailed(key string, errs []string) {
	s.mark(key, enum.DedupOutcomeFailed, errs)
}

func (s *Store) MarkProcessedBatch(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, key := range keys {
		s.entries[key] = entry{outcome: enum.DedupOutcomeProcessed, markedAt: now}
	}
	s.evictLocked()
}

func (s *Store) MarkFailedBatch(keys []string, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, key := range keys {
		s.entries[key] = entry{outcome: enum.DedupOutcomeFailed, markedAt: now, errs: errs}
	}
	s.evictLocked()
}

// Outcome returns the recorded outcome for a key, if any.
func (s *Store) Outcome(key string) (enum.DedupOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.outcome, ok
}

func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop terminates the TTL sweeper. The store remains usable.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// mark is idempotent: re-marking overwrites outcome and timestamp,
// last write wins.
func (s *Store) mark(key string, outcome enum.DedupOutcome, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{outcome: outcome, markedAt: time.Now(), errs: errs}
	s.evictLocked()
}

// evictLocked drops the oldest entries until the store is back under
// the target fill. Caller holds the mutex.
func (s *Store) evictLocked() {
	if s.maxSize <= 0 || len(s.entries) <= s.maxSize {
		return
	}

	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(s.entries))
	for k, e := range s.entries {
		all = append(all, aged{k, e.markedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	target := int(float64(s.maxSize) * evictTarget)
	evicted := 0
	for _, a := range all {
		if len(s.entries) <= target {
			break
		}
		delete(s.entries, a.key)
		evicted++
	}
	logger.Debug("Dedup store evicted oldest entries", "evicted", evicted, "size", len(s.entries))
}

func (s *Store) sweep() {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.expire(time.Now().Add(-s.ttl))
		}
	}
}

func (s *Store) expire(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for k, e := range s.entries {
		if e.markedAt.Before(cutoff) {
			delete(s.entries, k)
			expired++
		}
	}
	if expired > 0 {
		logger.Debug("Dedup store expired entries", "expired", expired, "size", len(s.entries))
	}
}
