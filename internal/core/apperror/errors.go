// Package apperror provides the structured error type shared by all layers.
// Handlers never build error responses themselves: they register an error
// and middleware.ErrorHandler renders it.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeInternal          = "INTERNAL_ERROR"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeSearchUnavailable = "SEARCH_UNAVAILABLE"
)

// Identity error keys, reported in Details["key"].
const (
	KeyIDExists   = "idexists"
	KeyIDNull     = "idnull"
	KeyIDInvalid  = "idinvalid"
	KeyIDNotFound = "idnotfound"
)

// AppError is the standard error type for the service.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (entity, key, id, reason)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Key returns Details["key"] or an empty string.
func (e *AppError) Key() string {
	k, _ := e.Details["key"].(string)
	return k
}

// --- Factory functions ---

// NewInvalidRequest reports a caller-supplied identity that does not fit the
// operation (id present on create, id missing or mismatched on update).
func NewInvalidRequest(entity, key string) *AppError {
	messages := map[string]string{
		KeyIDExists:  "A new entity cannot already have an ID",
		KeyIDNull:    "Invalid id",
		KeyIDInvalid: "Invalid ID",
	}
	msg, ok := messages[key]
	if !ok {
		msg = "Invalid request"
	}
	return &AppError{
		Code:       CodeInvalidRequest,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entity, "key": key},
	}
}

// NewNotFound creates a not found error (404) for reads.
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewIDNotFound reports that an update targets an id the primary store does
// not hold. It is a client error on the write path, hence 400.
func NewIDNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    "Entity not found",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entity, "id": id, "key": KeyIDNotFound},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewSearchUnavailable wraps a search backend failure (502).
func NewSearchUnavailable(entity string, err error) *AppError {
	return &AppError{
		Code:       CodeSearchUnavailable,
		Message:    "Search backend unavailable",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"entity": entity},
		Err:        err,
	}
}

// NewMalformedQuery reports a query string the search backend cannot parse.
// Same code as NewSearchUnavailable, but the caller is at fault (400).
func NewMalformedQuery(entity, query string, err error) *AppError {
	return &AppError{
		Code:       CodeSearchUnavailable,
		Message:    "Malformed search query",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity": entity, "query": query, "reason": err.Error()},
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func hasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsInvalidRequest checks if error is CodeInvalidRequest
func IsInvalidRequest(err error) bool {
	return hasCode(err, CodeInvalidRequest)
}

// IsConflict checks if error is CodeConflict
func IsConflict(err error) bool {
	return hasCode(err, CodeConflict)
}

// IsSearchUnavailable checks if error is CodeSearchUnavailable
func IsSearchUnavailable(err error) bool {
	return hasCode(err, CodeSearchUnavailable)
}
