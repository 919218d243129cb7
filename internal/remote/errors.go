package remote

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ErrOffline marks a network-level failure: DNS, dial, timeout. Callers
// degrade to cached data and report an offline status instead of an error.
var ErrOffline = errors.New("remote unreachable")

// ErrNotFound marks a point lookup that the remote answered with 404.
var ErrNotFound = errors.New("remote: not found")

// APIError is a structured 4xx/5xx response from the remote authority.
// 4xx responses are surfaced as-is and never retried; 5xx responses are
// retried with backoff before being surfaced.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote: %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

func (e *APIError) AuthExpired() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsOffline reports whether err is a network-level failure rather than a
// response the remote actually produced.
func IsOffline(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOffline) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// IsRetryable reports whether a failed call may be attempted again: network
// failures and 5xx responses are transient, 4xx responses are not.
func IsRetryable(err error) bool {
	if IsOffline(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
