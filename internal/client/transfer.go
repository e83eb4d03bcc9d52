package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

var (
	ErrParseFile     = errors.New("Error parsing file")
	ErrInvalidFormat = errors.New("Invalid file format")
)

// ImportResult lists what an import created and how many entries it skipped.
type ImportResult struct {
	Imported []Expense
	Failed   int
}

// Export writes list as an indented JSON array.
func Export(w io.Writer, list []Expense) error {
	if list == nil {
		list = []Expense{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return fmt.Errorf("export expenses: %w", err)
	}
	return nil
}

// ExportFilename is the download name for an export taken at t.
func ExportFilename(t time.Time) string {
	return "expenses-" + t.Format(core.DateLayout) + ".json"
}

// Import re-submits each element of a JSON array through AddExpense, one at a
// time. Entries the API rejects are logged and skipped; entries already created
// stay created.
func (c *Client) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrParseFile, err)
	}
	data = bytes.TrimSpace(data)

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ImportResult{}, ErrParseFile
	}
	if _, ok := raw.([]any); !ok {
		return ImportResult{}, ErrInvalidFormat
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return ImportResult{}, ErrParseFile
	}

	result := ImportResult{Imported: make([]Expense, 0, len(records))}
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			result.Failed++
			c.logger.WarnContext(ctx, "Skipping unreadable import entry",
				"index", i, log.FieldError, err, log.FieldOperation, log.OpImport)
			continue
		}

		e, err := c.AddExpense(ctx, importInput(rec))
		if err != nil {
			result.Failed++
			c.logger.WarnContext(ctx, "Import entry rejected",
				"index", i, log.FieldError, err, log.FieldOperation, log.OpImport)
			continue
		}
		result.Imported = append(result.Imported, e)
	}

	c.logger.InfoContext(ctx, "Import finished",
		log.FieldCount, len(result.Imported), "failed", result.Failed, log.FieldOperation, log.OpImport)
	return result, nil
}

// importInput keeps the fields as found. The API decides what is valid.
func importInput(r Record) Input {
	in := Input{Category: r.Category, Note: r.Note, Date: r.Date}
	amount := bytes.TrimSpace(r.Amount)
	if len(amount) > 0 && !bytes.Equal(amount, []byte("null")) {
		var s string
		if json.Unmarshal(amount, &s) == nil {
			in.Amount = s
		} else {
			in.Amount = string(amount)
		}
	}
	return in
}
