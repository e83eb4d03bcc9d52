// Package http serves the expense REST API.
//
// This file implements the Builder Pattern for the JSON response envelope
// shared by every endpoint: {success, count?, deletedCount?, message?, data?,
// error?, errors?}.

package http

import (
	"encoding/json"
	"net/http"

	"expensetracker/internal/core"
)

// Envelope is the uniform response body.
type Envelope struct {
	Success      bool     `json:"success"`
	Count        *int     `json:"count,omitempty"`
	DeletedCount *int64   `json:"deletedCount,omitempty"`
	Message      string   `json:"message,omitempty"`
	Data         any      `json:"data,omitempty"`
	Error        string   `json:"error,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
}

// NewJSONResponse creates a successful 200 response.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code. Codes of 400 and above mark the envelope unsuccessful.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	b.envelope.Success = code < http.StatusBadRequest
	return b
}

func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.envelope.Message = msg
	return b
}

func (b *JSONResponseBuilder) Data(data any) *JSONResponseBuilder {
	b.envelope.Data = data
	return b
}

func (b *JSONResponseBuilder) Count(n int) *JSONResponseBuilder {
	b.envelope.Count = &n
	return b
}

func (b *JSONResponseBuilder) DeletedCount(n int64) *JSONResponseBuilder {
	b.envelope.DeletedCount = &n
	return b
}

// Error records the underlying failure text. Nil is ignored.
func (b *JSONResponseBuilder) Error(err error) *JSONResponseBuilder {
	if err != nil {
		b.envelope.Error = err.Error()
	}
	return b
}

func (b *JSONResponseBuilder) Errors(msgs []string) *JSONResponseBuilder {
	b.envelope.Errors = msgs
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Envelope returns the body that Write would send.
func (b *JSONResponseBuilder) Envelope() Envelope {
	return b.envelope
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.Envelope())
}

// ErrorResponse creates an unsuccessful response carrying message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Message(message)
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError reports a persistence failure. message names what was
// being done ("Error creating expense"); err is passed through as the error field.
func InternalServerError(message string, err error) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message).Error(err)
}

// TooManyRequestsError asks the caller to retry after the limiter window.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "Too many requests, please try again later").
		Header("Retry-After", "60")
}

// Validation messages surfaced by create and update.
const (
	MsgRequiredFields  = "All fields (amount, date, category, note) are required"
	MsgAmountPositive  = core.MsgAmountNotPositive
	MsgValidationError = "Validation error"
)

// ValidationErrorResponse maps a rejected record to a 400 listing every
// violation. The headline is the missing-fields message when a field is
// absent, the amount message when the amount is not positive, and a generic
// one otherwise.
func ValidationErrorResponse(v *core.ValidationError) *JSONResponseBuilder {
	var b *JSONResponseBuilder
	switch {
	case v.MissingRequired():
		b = BadRequestError(MsgRequiredFields)
	case v.HasMessage("amount", core.MsgAmountNotPositive):
		b = BadRequestError(MsgAmountPositive)
	default:
		b = BadRequestError(MsgValidationError)
	}
	return b.Errors(v.Messages())
}
