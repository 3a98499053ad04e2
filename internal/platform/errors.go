package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/cfgmigrate/internal/model"
)

// ErrorCode categorizes Object Store Client failures.
type ErrorCode string

const (
	// ErrCodeValidation indicates the instance rejected the payload.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeConflict indicates the object clashes with an existing one.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeNotFound indicates the object does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTransient indicates a failure that may succeed on retry.
	ErrCodeTransient ErrorCode = "TRANSIENT"

	// ErrCodeUnauthorized indicates missing or rejected credentials.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Error is returned by every Client implementation.
type Error struct {
	Code ErrorCode

	// Op is the operation: list, get, create or update.
	Op   string
	Kind model.Kind
	ID   string

	// Status is the HTTP status, zero for non-HTTP clients.
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	target := string(e.Kind)
	if e.ID != "" {
		target += "/" + e.ID
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %s", e.Op, target, e.Code, e.Status, msg)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Op, target, e.Code, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return CodeOf(err) == ErrCodeTransient
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsConflict reports whether err is a CONFLICT error.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

// IsValidation reports whether err is a VALIDATION error.
func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

// CodeForStatus maps an HTTP status to an error code.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrCodeValidation
	case status == http.StatusConflict:
		return ErrCodeConflict
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrCodeUnauthorized
	case status == http.StatusTooManyRequests, status >= 500:
		return ErrCodeTransient
	default:
		return ErrCodeValidation
	}
}

// NewNotFound creates a NOT_FOUND error.
func NewNotFound(op string, kind model.Kind, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Op: op, Kind: kind, ID: id, Message: "object does not exist"}
}
