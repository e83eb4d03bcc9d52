package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// Store keeps expenses in a map guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	items map[string]core.Expense
	now   func() time.Time
}

var _ storage.Gateway = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string]core.Expense), now: time.Now}
}

// NewWithClock is New with an injectable clock.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

// Seed inserts records as-is. Used to preload fixtures.
func (s *Store) Seed(list ...core.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range list {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.items[e.ID] = e
	}
}

func (s *Store) List(_ context.Context, f core.Filter) ([]core.Expense, error) {
	s.mu.RLock()
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	core.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *Store) Insert(_ context.Context, f core.Fields) (core.Expense, error) {
	now := s.now().UTC()
	e := core.Expense{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	e.Apply(f, now)

	s.mu.Lock()
	s.items[e.ID] = e
	s.mu.Unlock()
	return e, nil
}

func (s *Store) Replace(_ context.Context, id string, f core.Fields) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, storage.ErrNotFound
	}
	now := s.now().UTC()
	e.Apply(f, now)
	if now.After(e.CreatedAt) {
		e.UpdatedAt = now
	} else {
		e.UpdatedAt = e.CreatedAt
	}
	s.items[id] = e
	return e, nil
}

func (s *Store) Delete(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, storage.ErrNotFound
	}
	delete(s.items, id)
	return e, nil
}

func (s *Store) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.items))
	s.items = make(map[string]core.Expense)
	return n, nil
}

func (s *Store) Aggregate(ctx context.Context, f core.Filter) (core.Stats, error) {
	list, err := s.List(ctx, f)
	if err != nil {
		return core.Stats{}, err
	}
	return core.Aggregate(list), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
