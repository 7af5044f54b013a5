package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewAuthorizationError marks an operation attempted on a record the acting
// identity does not own. Rejected before any store call; no retry.
func NewAuthorizationError(message string) error {
	return NewDomainError("NOT_OWNER", message, http.StatusForbidden, nil)
}

// NewPersistenceError wraps a failed store write. Callers roll back via
// refetch for structural moves and keep local drafts for note edits.
func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       "PERSISTENCE_FAILED",
		Message:    "store write failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewFetchError wraps a failed viewport read. Surfaced as a blocking state;
// the user triggers a manual reload.
func NewFetchError(err error) error {
	return &DomainError{
		Code:       "FETCH_FAILED",
		Message:    "records could not be fetched",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPartialCommitError reports a queue commit that failed partway through the
// row-by-row fallback. Rows already written are not reconciled back.
func NewPartialCommitError(applied int, err error) error {
	return &DomainError{
		Code:       "PARTIAL_COMMIT",
		Message:    "queue order could not be saved",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"rows_applied": applied},
		Err:        err,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
