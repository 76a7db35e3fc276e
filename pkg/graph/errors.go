package graph

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Temporary reports whether retrying later may succeed (throttling or server side failure).
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsNotFound reports whether the provider no longer knows the resource.
func IsNotFound(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound
}

// IsRejected reports a 4xx class answer that will not succeed on retry.
func IsRejected(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.StatusCode >= http.StatusBadRequest && pe.StatusCode < http.StatusInternalServerError && !pe.Temporary()
}

// IsTransient reports timeouts, network failures and retryable provider answers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
