package pokeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error types carried by ClientError.Type.
const (
	ErrorTypeNetwork    = "Network"
	ErrorTypeTimeout    = "Timeout"
	ErrorTypeCanceled   = "Canceled"
	ErrorTypeServer     = "Server"
	ErrorTypeClient     = "Client"
	ErrorTypeParse      = "Parse"
	ErrorTypeExhausted  = "Exhausted"
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCanceled matches every failure caused by the caller's context ending.
	ErrCanceled = errors.New("pokeclient: request canceled")

	// ErrTimeout matches attempts that exceeded their per-attempt timeout.
	ErrTimeout = errors.New("pokeclient: attempt timed out")

	// ErrRetriesExhausted matches requests that failed on every attempt.
	ErrRetriesExhausted = errors.New("pokeclient: retries exhausted")

	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("pokeclient: not found")
)

// ClientError is the classified failure returned by the Engine and the Client.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	Method     string
	URL        string
	StatusCode int
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries+1)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is and maps the package sentinels.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}

	switch target {
	case ErrCanceled:
		return e.Type == ErrorTypeCanceled
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrRetriesExhausted:
		return e.Type == ErrorTypeExhausted
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries+1)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsCanceled reports whether err was caused by the caller cancelling. Bare
// context.Canceled values count too.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// IsNotFound reports whether err carries a 404 status.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

// IsTransient determines if an error represents a failure that might succeed
// on a later request: network errors, timeouts, 5xx, 429 and exhausted
// retries of those. Cancellation, 4xx and parse failures are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}

	switch clientErr.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeExhausted:
		return true
	case ErrorTypeClient:
		return clientErr.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

func isRetryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}
