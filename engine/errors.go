package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies engine errors.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindInvalidOperation Kind = "invalid_operation"
	KindValidation       Kind = "validation"
	KindConstraint       Kind = "constraint"
	KindInternal         Kind = "internal"
)

// Error is the typed, status-coded error every operation reports.
type Error struct {
	Kind    Kind   `json:"kind"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	// Details carries the original diagnostic for internal errors.
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NotFound reports a missing document.
func NotFound(doctype, id string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound,
		Message: fmt.Sprintf("%s %s not found", doctype, id)}
}

// PermissionDenied reports a failed permission gate, naming which one.
func PermissionDenied(doctype string, action string, gate string) *Error {
	return &Error{Kind: KindPermissionDenied, Status: http.StatusForbidden,
		Message: fmt.Sprintf("no %s permission on %s (%s)", action, doctype, gate)}
}

// InvalidOperation reports an illegal state transition.
func InvalidOperation(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidOperation, Status: http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...)}
}

// Validation reports a failed document validation.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...)}
}

// Constraint reports a field-scoped constraint failure.
func Constraint(format string, args ...any) *Error {
	return &Error{Kind: KindConstraint, Status: http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...)}
}

// Normalize maps any error onto the typed taxonomy. Unexpected errors become
// status 500 with a generic message plus the original for diagnostics.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if c := translateConstraint(err); c != nil {
		return c
	}
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError,
		Message: "internal error", Details: err.Error()}
}

// translateConstraint converts backend constraint failure text into a
// field-scoped message.
func translateConstraint(err error) *Error {
	msg := err.Error()
	for _, probe := range []struct {
		needle string
		what   string
	}{
		{"UNIQUE constraint failed", "must be unique"},
		{"NOT NULL constraint failed", "is required"},
		{"FOREIGN KEY constraint failed", "references a missing document"},
	} {
		idx := strings.Index(msg, probe.needle)
		if idx < 0 {
			continue
		}
		rest := strings.TrimPrefix(msg[idx+len(probe.needle):], ": ")
		field := rest
		if dot := strings.LastIndexByte(rest, '.'); dot >= 0 {
			field = rest[dot+1:]
		}
		field = strings.TrimSpace(field)
		if field == "" {
			return Constraint("constraint failed: %s", probe.needle)
		}
		return Constraint("field %s %s", field, probe.what)
	}
	return nil
}
