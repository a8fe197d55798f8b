// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Rather than repeating the same three lines (set header, set status,
// encode JSON) in every handler, we centralise them here.
//
// Error responses always look like:
//
//	{ "status": "error", "error": "field name is required" }
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the standard envelope returned for error cases and for the
// health check. Success responses may return any JSON shape.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Status string constants — use these instead of raw string literals so
// a typo is caught by the compiler rather than silently sending "eroor".
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Messages sent to clients for outcomes whose details stay server-side.
const (
	MsgInternal        = "Internal server error"
	MsgNotFound        = "Student not found"
	MsgConflict        = "Email already exists"
	MsgTooManyRequests = "Too many requests, please try again later."
)

// ─────────────────────────────────────────────────────────────────────────────
// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
// ─────────────────────────────────────────────────────────────────────────────
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// NoContent writes a status with an empty body, e.g. 204 after a delete.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// OK is the body of a successful health check: { "status": "ok" }.
func OK() Response {
	return Response{Status: StatusOK}
}

// Error builds an error envelope around a message that is safe to show
// to clients.
func Error(msg string) Response {
	return Response{Status: StatusError, Error: msg}
}

// GeneralError wraps a Go error whose text is safe to show to clients,
// such as a JSON decode error. Never pass storage errors here.
func GeneralError(err error) Response {
	return Error(err.Error())
}

// InternalError is the generic body for every unanticipated failure.
func InternalError() Response {
	return Error(MsgInternal)
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationError converts a slice of validator.FieldError values into
// a single human-readable Response.
//
// The go-playground/validator package returns one FieldError per failing
// struct field. We convert each to a plain English sentence and join them
// with ", " so the client sees a single descriptive error string.
//
// Field names are reported as the JSON keys clients send ("name", not "Name").
// ─────────────────────────────────────────────────────────────────────────────
func ValidationError(errs validator.ValidationErrors) Response {
	var errMessages []string

	for _, e := range errs {
		field := strings.ToLower(e.Field())

		switch e.ActualTag() {
		case "required":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is required", field))
		case "email":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be a valid email address", field))
		case "min", "gte":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be at least %s", field, e.Param()))
		case "max", "lte":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be at most %s", field, e.Param()))
		default:
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is invalid", field))
		}
	}

	return Error(strings.Join(errMessages, ", "))
}
