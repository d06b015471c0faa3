package errors

import (
	"errors"
	"fmt"
	"net/http"

	"ai-subtitler/internal/app/repository"
	"ai-subtitler/internal/app/storage"
)

// ErrorKind represents different types of API errors
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindForbidden          ErrorKind = "forbidden"
	KindConflict           ErrorKind = "conflict"
	KindPayloadTooLarge    ErrorKind = "payload_too_large"
	KindInternal           ErrorKind = "internal"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindBadRequest         ErrorKind = "bad_request"
)

// APIError represents a structured API error response
type APIError struct {
	Kind      ErrorKind         `json:"kind"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error kind
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(message string, fields map[string]string) *APIError {
	return &APIError{Kind: KindValidation, Message: message, Details: fields}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *APIError {
	return &APIError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func NewUnauthorizedError(message string) *APIError {
	return &APIError{Kind: KindUnauthorized, Message: message}
}

func NewForbiddenError(message string) *APIError {
	return &APIError{Kind: KindForbidden, Message: message}
}

func NewConflictError(message string) *APIError {
	return &APIError{Kind: KindConflict, Message: message}
}

func NewPayloadTooLargeError(message string) *APIError {
	return &APIError{Kind: KindPayloadTooLarge, Message: message}
}

func NewInternalError(message string) *APIError {
	return &APIError{Kind: KindInternal, Message: message}
}

func NewBadRequestError(message string) *APIError {
	return &APIError{Kind: KindBadRequest, Message: message}
}

func NewServiceUnavailableError(message string) *APIError {
	return &APIError{Kind: KindServiceUnavailable, Message: message}
}

// FromError converts a service-layer error into an APIError. Errors the
// client cannot act on collapse into a generic internal error; ok is false
// for those so the caller can log the original.
func FromError(err error) (apiErr *APIError, ok bool) {
	var existing *APIError
	switch {
	case errors.As(err, &existing):
		return existing, true
	case errors.Is(err, repository.ErrJobNotFound):
		return NewNotFoundError("Job"), true
	case errors.Is(err, storage.ErrObjectNotFound):
		return NewNotFoundError("File"), true
	case errors.Is(err, storage.ErrInvalidReference):
		return NewBadRequestError("Invalid file reference"), true
	default:
		return NewInternalError("Internal server error"), false
	}
}
