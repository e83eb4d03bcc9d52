package cache

import (
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/core"
)

// Cache defines a generic cache interface.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// StatsCache memoizes aggregation results per filter. Any write to the
// expense collection must call Invalidate.
//
// Results are stored against the generation observed before they were
// computed, so a result computed across an Invalidate is discarded.
type StatsCache struct {
	*LRUCache[core.Stats]

	mu  sync.Mutex
	gen uint64
}

// NewStatsCache returns a cache holding up to maxSize filter results.
func NewStatsCache(maxSize int, ttl time.Duration) *StatsCache {
	return &StatsCache{LRUCache: NewLRUCache[core.Stats](maxSize, ttl)}
}

// Lookup returns the cached stats for f, or the current generation to pass
// to Store on a miss.
func (s *StatsCache) Lookup(f core.Filter) (core.Stats, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.Get(f.Key())
	return st, s.gen, ok
}

// Store caches stats for f unless the cache was invalidated after gen was
// read. It reports whether the result was kept.
func (s *StatsCache) Store(f core.Filter, stats core.Stats, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.Set(f.Key(), stats)
	return true
}

func (s *StatsCache) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.Purge()
}

// Cleaner is implemented by caches that support expiry sweeps.
type Cleaner interface {
	CleanExpired() int
}

// Manager handles cache lifecycle and periodic cleanup.
type Manager struct {
	caches      []Cleaner
	logger      *slog.Logger
	stopOnce    sync.Once
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:      logger,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup.
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			total := 0
			for _, c := range m.caches {
				total += c.CleanExpired()
			}
			if total > 0 {
				m.logger.Debug("Cache cleanup completed", "expired_entries", total)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup routine. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		if m.started {
			<-m.cleanupDone
		}
	})
}
