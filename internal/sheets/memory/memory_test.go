package memory

import (
	"context"
	"errors"
	"testing"

	"expensetracker/internal/sheets"
)

func TestAppendActivity(t *testing.T) {
	s := New()
	ref, err := s.AppendActivity(context.Background(), sheets.Activity{Event: "created", ExpenseID: "a"})
	if err != nil {
		t.Fatalf("AppendActivity() error = %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}
	if got := s.Activities(); len(got) != 1 || got[0].ExpenseID != "a" {
		t.Errorf("Activities() = %+v", got)
	}
}

func TestFailWith(t *testing.T) {
	s := New()
	boom := errors.New("quota exceeded")
	s.FailWith(boom)
	if _, err := s.AppendActivity(context.Background(), sheets.Activity{}); !errors.Is(err, boom) {
		t.Errorf("AppendActivity() error = %v, want %v", err, boom)
	}
	s.FailWith(nil)
	if _, err := s.AppendActivity(context.Background(), sheets.Activity{}); err != nil {
		t.Errorf("AppendActivity() error = %v", err)
	}
	if n := len(s.Activities()); n != 1 {
		t.Errorf("len(Activities()) = %d, want 1", n)
	}
}
