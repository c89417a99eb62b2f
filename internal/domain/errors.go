package domain

import (
	"errors"
	"net/http"
)

// Error codes for front-end errors.
const (
	CodeNotFound   = 1
	CodeValidation = 3
	CodeInternal   = 4
	CodeFetch      = 5
	CodeMutation   = 6
	CodeBusy       = 7
)

// AppError represents an error with a code, message, and optional wrapped error.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined errors.
//
// Use the Is* helpers to classify errors. They compare codes via errors.As,
// so they also match freshly constructed instances from NewAppError and
// wrapped errors, whereas errors.Is only matches the sentinel pointer.
var (
	ErrNotFound   = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrValidation = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal   = &AppError{Code: CodeInternal, Message: "internal error"}
	ErrFetch      = &AppError{Code: CodeFetch, Message: "failed to fetch users"}
	ErrMutation   = &AppError{Code: CodeMutation, Message: "user mutation request failed"}
	ErrBusy       = &AppError{Code: CodeBusy, Message: "a request is already in flight"}
)

// NewAppError creates a new AppError with the given code, message, and wrapped error.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewFetchError wraps a failed list request: a transport failure, a
// non-success status or an undecodable body.
func NewFetchError(err error) *AppError {
	return NewAppError(CodeFetch, ErrFetch.Message, err)
}

// NewMutationError wraps a create, update or delete request that never
// produced a response.
func NewMutationError(err error) *AppError {
	return NewAppError(CodeMutation, ErrMutation.Message, err)
}

// IsNotFound reports whether err is or wraps an AppError with CodeNotFound.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsValidation reports whether err is or wraps an AppError with CodeValidation.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsInternal reports whether err is or wraps an AppError with CodeInternal.
func IsInternal(err error) bool {
	return hasCode(err, CodeInternal)
}

// IsFetchError reports whether err is or wraps an AppError with CodeFetch.
func IsFetchError(err error) bool {
	return hasCode(err, CodeFetch)
}

// IsMutationError reports whether err is or wraps an AppError with CodeMutation.
func IsMutationError(err error) bool {
	return hasCode(err, CodeMutation)
}

// IsBusy reports whether err is or wraps an AppError with CodeBusy.
func IsBusy(err error) bool {
	return hasCode(err, CodeBusy)
}

func hasCode(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// HTTPStatusCode maps an error to an HTTP status code.
// Backend failures map to 502; anything that is not an *AppError maps to 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if err != nil && errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeNotFound:
			return http.StatusNotFound
		case CodeValidation:
			return http.StatusBadRequest
		case CodeInternal:
			return http.StatusInternalServerError
		case CodeFetch, CodeMutation:
			return http.StatusBadGateway
		case CodeBusy:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}
