package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	Provider   string
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether the status is worth another attempt (429 or 5xx).
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// TransportError wraps a network-level failure (no HTTP response).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ExhaustedError is returned once the retry budget is spent.
type ExhaustedError struct {
	Provider   string
	Query      string
	LastStatus int
	Attempts   int
	Err        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s request failed after %d attempts (query=%q, last_status=%d): %v",
		e.Provider, e.Attempts, e.Query, e.LastStatus, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is retry exhaustion caused by HTTP 429.
func IsRateLimited(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex) && ex.LastStatus == http.StatusTooManyRequests
}

// Retry reasons used as metric labels.
const (
	ReasonRateLimited = "429"
	ReasonServer      = "5xx"
	ReasonTransport   = "transport"
	ReasonOther       = "other"
)

// RetryReason classifies the failure that triggered a retry.
func RetryReason(err error) string {
	var se *StatusError
	var te *TransportError
	switch {
	case errors.As(err, &se) && se.Status == http.StatusTooManyRequests:
		return ReasonRateLimited
	case errors.As(err, &se) && se.Status >= 500:
		return ReasonServer
	case errors.As(err, &te):
		return ReasonTransport
	default:
		return ReasonOther
	}
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
