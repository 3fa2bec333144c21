package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthorized = errors.New("llm unauthorized")
	ErrUnavailable  = errors.New("llm unavailable")
	ErrRateLimited  = errors.New("llm rate limited")
	ErrNoAPIKey     = errors.New("no api key configured")
	ErrNoBackend    = errors.New("no AI backend registered")
)

// HTTPError is a non-2xx reply that maps to none of the sentinel errors.
type HTTPError struct {
	Backend string
	Status  int
	Body    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Backend, e.Status, e.Body)
}

// statusError maps an HTTP status to a typed error. It returns nil for 2xx.
func statusError(backend string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", backend, ErrUnauthorized)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", backend, ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("%s: %w (HTTP %d)", backend, ErrUnavailable, status)
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return &HTTPError{Backend: backend, Status: status, Body: s}
}
