package http

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	list, err := s.svc.List(r.Context(), f)
	if err != nil {
		s.logFailure(r, "Error fetching expenses", err, log.OpList, "")
		InternalServerError("Error fetching expenses", err).Write(w)
		return
	}

	NewJSONResponse().Count(len(list)).Data(list).Write(w)
}

// handleExpenseStats ignores category; stats always span every category.
func (s *Server) handleExpenseStats(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	f.Category = ""

	stats, err := s.svc.Stats(r.Context(), f)
	if err != nil {
		s.logFailure(r, "Error fetching statistics", err, log.OpStats, "")
		InternalServerError("Error fetching statistics", err).Write(w)
		return
	}

	NewJSONResponse().Data(stats).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.svc.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		NotFoundError("Expense not found").Write(w)
		return
	}
	if err != nil {
		s.logFailure(r, "Error fetching expense", err, log.OpRead, id)
		InternalServerError("Error fetching expense", err).Write(w)
		return
	}

	NewJSONResponse().Data(e).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	f, ok := s.decodeExpense(w, r)
	if !ok {
		return
	}

	e, err := s.svc.Create(r.Context(), f)
	if s.writeValidation(w, err) {
		return
	}
	if err != nil {
		s.logFailure(r, "Error creating expense", err, log.OpCreate, "")
		InternalServerError("Error creating expense", err).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesCreated, 1)
	NewJSONResponse().
		Status(http.StatusCreated).
		Message("Expense created successfully").
		Data(e).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, ok := s.decodeExpense(w, r)
	if !ok {
		return
	}

	e, err := s.svc.Update(r.Context(), id, f)
	if s.writeValidation(w, err) {
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		NotFoundError("Expense not found").Write(w)
		return
	}
	if err != nil {
		s.logFailure(r, "Error updating expense", err, log.OpUpdate, id)
		InternalServerError("Error updating expense", err).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesUpdated, 1)
	NewJSONResponse().Message("Expense updated successfully").Data(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.svc.Delete(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		NotFoundError("Expense not found").Write(w)
		return
	}
	if err != nil {
		s.logFailure(r, "Error deleting expense", err, log.OpDelete, id)
		InternalServerError("Error deleting expense", err).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesDeleted, 1)
	NewJSONResponse().Message("Expense deleted successfully").Data(e).Write(w)
}

// handleDeleteAllExpenses is unguarded; confirmation belongs to the UI.
func (s *Server) handleDeleteAllExpenses(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.DeleteAll(r.Context())
	if err != nil {
		s.logFailure(r, "Error clearing expenses", err, log.OpDeleteAll, "")
		InternalServerError("Error clearing expenses", err).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesDeleted, n)
	NewJSONResponse().
		Message(fmt.Sprintf("Successfully deleted %d expenses", n)).
		DeletedCount(n).
		Write(w)
}

// decodeExpense parses the body, writing a 400 and returning false on failure.
func (s *Server) decodeExpense(w http.ResponseWriter, r *http.Request) (core.Fields, bool) {
	f, err := ParseExpenseBody(r)
	if err == nil {
		return f, true
	}
	if s.writeValidation(w, err) {
		return core.Fields{}, false
	}
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected request body",
		log.FieldPath, r.URL.Path, log.FieldError, err, log.FieldOperation, log.OpParse)
	BadRequestError("Invalid request body").Error(err).Write(w)
	return core.Fields{}, false
}

// writeValidation writes a 400 when err is a *core.ValidationError.
func (s *Server) writeValidation(w http.ResponseWriter, err error) bool {
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	ValidationErrorResponse(verr).Write(w)
	return true
}

func (s *Server) logFailure(r *http.Request, msg string, err error, op, id string) {
	fields := log.NewFields().WithRequestID(requestID(r))
	if id != "" {
		fields[log.FieldExpenseID] = id
	}
	s.structured.LogError(r.Context(), msg, err, log.ErrorTypeDatabase, op, fields)
}
