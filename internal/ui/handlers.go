package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"expensetracker/internal/client"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

// page loads the list for filter and derives everything the templates show.
func (s *Server) page(ctx context.Context, tab string, filter filterView) pageData {
	f, problems := filter.coreFilter()
	list := s.client.LoadExpenses(ctx, f)
	now := s.now()

	data := pageData{
		Tab:             tab,
		Filter:          filter,
		CategoryOptions: categoryOptions(list),
		Categories:      allCategories(),
		Expenses:        list,
		Form:            emptyForm(now.Format(core.DateLayout)),
		Summary:         core.Summarize(client.ToCore(list)),
		Now:             now,
	}
	if len(problems) > 0 {
		data.Flash = &flash{Message: strings.Join(problems, ". "), Kind: "error"}
	}
	if tab == TabSummary {
		if st, err := s.client.Stats(ctx, f); err == nil {
			data.Stored = &st
		} else {
			data.Offline = true
			log.FromContext(ctx).WithComponent(log.ComponentUI).WarnContext(ctx, "Stored totals unavailable",
				log.FieldError, err, log.FieldOperation, log.OpStats)
		}
	}
	return data
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := s.page(r.Context(), parseTab(q.Get("tab")), filterFromValues(q))

	if msg := strings.TrimSpace(q.Get("flash")); msg != "" && data.Flash == nil {
		kind := "success"
		if q.Get("kind") == "error" {
			kind = "error"
		}
		data.Flash = &flash{Message: msg, Kind: kind}
	}

	if id := q.Get("edit"); id != "" {
		if e, ok := findExpense(data.Expenses, id); ok {
			data.Form = formFromExpense(e)
			data.Tab = TabForm
		} else {
			data.Flash = &flash{Message: "Expense not found", Kind: "error"}
		}
	}

	s.render(w, r, http.StatusOK, data)
}

func findExpense(list []client.Expense, id string) (client.Expense, bool) {
	for _, e := range list {
		if e.ID == id {
			return e, true
		}
	}
	return client.Expense{}, false
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, "")
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, r.PathValue("id"))
}

// submit validates the form, then creates or, when id is set, updates.
// A rejected form is re-rendered with its values kept.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, id string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	filter := filterFromValues(r.PostForm)

	form := formFromValues(r.PostForm)
	form.ID = id
	form.validate()
	if !form.Valid() {
		data := s.page(ctx, TabForm, filter)
		data.Form = form
		s.render(w, r, http.StatusBadRequest, data)
		return
	}

	var (
		err  error
		done string
		op   = log.OpCreate
	)
	if id == "" {
		_, err = s.client.AddExpense(ctx, form.Input())
		done = "Expense added"
	} else {
		op = log.OpUpdate
		_, err = s.client.UpdateExpense(ctx, id, form.Input())
		done = "Expense updated"
	}
	if err != nil {
		s.logFailure(r, op, id, err)
		data := s.page(ctx, TabForm, filter)
		data.Form = form
		data.Flash = &flash{Message: failureMessage(op, err), Kind: "error"}
		s.render(w, r, statusFor(err), data)
		return
	}

	s.redirect(w, r, TabExpenses, filter, flash{Message: done, Kind: "success"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	id := r.PathValue("id")
	filter := filterFromValues(r.PostForm)

	if err := s.client.DeleteExpense(r.Context(), id); err != nil {
		s.logFailure(r, log.OpDelete, id, err)
		s.redirect(w, r, TabExpenses, filter, flash{Message: failureMessage(log.OpDelete, err), Kind: "error"})
		return
	}
	s.redirect(w, r, TabExpenses, filter, flash{Message: "Expense deleted", Kind: "success"})
}

// handleClear requires confirm=yes; the API call it makes is unguarded.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.PostForm.Get("confirm") != "yes" {
		s.redirect(w, r, TabSummary, filterView{}, flash{Message: "Tick the confirmation box to clear all expenses", Kind: "error"})
		return
	}

	n, err := s.client.ClearAll(r.Context())
	if err != nil {
		s.logFailure(r, log.OpDeleteAll, "", err)
		s.redirect(w, r, TabSummary, filterView{}, flash{Message: failureMessage(log.OpDeleteAll, err), Kind: "error"})
		return
	}
	s.redirect(w, r, TabSummary, filterView{}, flash{Message: fmt.Sprintf("All expenses cleared (%d deleted)", n), Kind: "success"})
}

// handleExport downloads the list the current filter shows.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter := filterFromValues(r.URL.Query())
	f, _ := filter.coreFilter()
	list := s.client.LoadExpenses(r.Context(), f)

	var buf bytes.Buffer
	if err := client.Export(&buf, list); err != nil {
		s.logFailure(r, log.OpExport, "", err)
		s.redirect(w, r, TabSummary, filter, flash{Message: "Export failed: " + err.Error(), Kind: "error"})
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, client.ExportFilename(s.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxImportBytes); err != nil {
		s.redirect(w, r, TabSummary, filterView{}, flash{Message: "Import failed: " + client.ErrParseFile.Error(), Kind: "error"})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		s.redirect(w, r, TabSummary, filterView{}, flash{Message: "Choose a file to import", Kind: "error"})
		return
	}
	defer file.Close()

	res, err := s.client.Import(r.Context(), file)
	if err != nil {
		s.logFailure(r, log.OpImport, "", err)
		s.redirect(w, r, TabSummary, filterView{}, flash{Message: "Import failed: " + err.Error(), Kind: "error"})
		return
	}

	msg := fmt.Sprintf("Imported %d expenses", len(res.Imported))
	if res.Failed > 0 {
		msg += fmt.Sprintf(", %d skipped", res.Failed)
	}
	s.redirect(w, r, TabExpenses, filterView{}, flash{Message: msg, Kind: "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// redirect answers a POST with 303 to the index, carrying the flash.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, tab string, filter filterView, f flash) {
	q := filter.Values()
	q.Set("tab", tab)
	if f.Message != "" {
		q.Set("flash", f.Message)
		if f.Kind == "error" {
			q.Set("kind", "error")
		}
	}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

// render executes the page into a buffer so a template failure never leaves
// half a page on the wire.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Index template execution failed",
			log.FieldError, err, log.FieldOperation, log.OpRender)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) logFailure(r *http.Request, op, id string, err error) {
	args := []any{log.FieldError, err, log.FieldOperation, op}
	if id != "" {
		args = append(args, log.FieldExpenseID, id)
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentUI).WarnContext(r.Context(), "Expense action failed", args...)
}

func failureMessage(op string, err error) string {
	action := map[string]string{
		log.OpCreate:    "Failed to add expense",
		log.OpUpdate:    "Failed to update expense",
		log.OpDelete:    "Failed to delete expense",
		log.OpDeleteAll: "Failed to clear expenses",
	}[op]
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return action + ": " + apiErr.Error()
	}
	return action + ". Please check the backend/server."
}

// statusFor mirrors a 4xx from the API and reports anything else as 502.
func statusFor(err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}
