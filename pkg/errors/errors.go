package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// Details carries provider supplied context (error code/message) when present.
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so wrapped clones compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err using the code and status of a sentinel.
func WrapAs(sentinel *Error, err error, message string) *Error {
	if message == "" {
		message = sentinel.Message
	}
	return Wrap(err, sentinel.Code, sentinel.Status, message)
}

// WithDetails returns a copy of err carrying the provided details.
func WithDetails(err *Error, details map[string]string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrAuthExpired means the stored refresh token is missing or was rejected; the user must log in again.
	ErrAuthExpired = New("AUTH_EXPIRED", http.StatusUnauthorized, "authentication expired, please log in again")
	// ErrProviderRejected is an unrecoverable 4xx answer from the change-notification provider.
	ErrProviderRejected = New("PROVIDER_REJECTED", http.StatusBadGateway, "provider rejected the request")
	// ErrTransientNetwork covers timeouts and 5xx answers; retried on the next renewal pass only.
	ErrTransientNetwork = New("PROVIDER_UNAVAILABLE", http.StatusServiceUnavailable, "provider temporarily unavailable")
	// ErrPersistence is a repository or token store I/O failure.
	ErrPersistence = New("PERSISTENCE_ERROR", http.StatusInternalServerError, "storage failure")
	// ErrInvalidClientState flags a webhook notification signed with the wrong shared secret.
	ErrInvalidClientState = New("INVALID_CLIENT_STATE", http.StatusBadRequest, "notification client state mismatch")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// RequiresLogin reports whether err tells the caller to send the user back through login.
func RequiresLogin(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}
