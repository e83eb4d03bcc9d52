package memory

import (
	"context"
	"fmt"
	"sync"

	"expensetracker/internal/sheets"
)

// Store records activity rows in memory. Used when no spreadsheet is configured.
type Store struct {
	mu    sync.Mutex
	items []sheets.Activity
	fail  error
}

var _ sheets.ActivityWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// FailWith makes subsequent appends return err. Nil restores normal behaviour.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// AppendActivity stores a and returns a synthetic row reference.
func (s *Store) AppendActivity(_ context.Context, a sheets.Activity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.items = append(s.items, a)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Activities returns a copy of everything recorded so far.
func (s *Store) Activities() []sheets.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Activity(nil), s.items...)
}
