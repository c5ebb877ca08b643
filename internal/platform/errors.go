package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError means no response was received at all
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means the 30s budget for the logical call was exhausted
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response that is not a suspension signal
type HTTPError struct {
	StatusCode    int
	ServerMessage string
}

func (e *HTTPError) Error() string {
	if e.ServerMessage != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.ServerMessage)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// SuspendedError is returned to the caller when a request hit the
// account-suspended marker. The authoritative notification travels on the
// suspension hub; this error only lets the caller abort its local flow.
type SuspendedError struct {
	Signal SuspensionSignal
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("account suspended: %s", e.Signal.Reason)
}

// IsSuspended reports whether err carries a suspension signal
func IsSuspended(err error) bool {
	var se *SuspendedError
	return errors.As(err, &se)
}

// retryable reports whether the error is worth another attempt:
// transport failures, timeouts within budget, and 5xx/408/429 responses.
func retryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode >= 500:
			return true
		case he.StatusCode == http.StatusRequestTimeout:
			return true
		case he.StatusCode == http.StatusTooManyRequests:
			return true
		}
	}
	return false
}
