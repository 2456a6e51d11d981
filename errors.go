package fbq

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for use with errors.Is.
var (
	ErrTimedOut      = errors.New("fbq: request timed out")
	ErrServerFailure = errors.New("fbq: server failure")
	ErrBadResponse   = errors.New("fbq: bad response")
)

// TimeoutError is returned when the transport does not complete within the
// configured timeout after the retry budget is exhausted.
type TimeoutError struct {
	// Method is the HTTP method of the failed request.
	Method string

	// URL is the full request URL.
	URL string

	// Attempts is the total number of attempts made, including retries.
	Attempts int

	// Elapsed is the total time spent across all attempts.
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fbq: %s %s timed out after %s (%d attempts)",
		e.Method, e.URL, e.Elapsed.Round(time.Millisecond), e.Attempts)
}

// Is enables errors.Is matching against [ErrTimedOut].
func (e *TimeoutError) Is(target error) bool { return target == ErrTimedOut }

// Unwrap returns [ErrTimedOut].
func (e *TimeoutError) Unwrap() error { return ErrTimedOut }

// ServerError is returned when the service responds with status 500 or 503,
// indicating a server-side fault rather than a problem with the request.
type ServerError struct {
	// Method is the HTTP method of the failed request.
	Method string

	// URL is the full request URL.
	URL string

	// StatusCode is the HTTP status code received (500 or 503).
	StatusCode int

	// Failure is the value of the X-Fbq-Failure diagnostic header, if the
	// server sent one.
	Failure string

	// Elapsed is the time the exchange took.
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	msg := fmt.Sprintf("fbq: %s %s returned %d in %s; the service is failing on its side, please report an issue",
		e.Method, e.URL, e.StatusCode, e.Elapsed.Round(time.Millisecond))
	if e.Failure != "" {
		msg += fmt.Sprintf(" (failure: %s)", e.Failure)
	}
	return msg
}

// Is enables errors.Is matching against [ErrServerFailure].
func (e *ServerError) Is(target error) bool { return target == ErrServerFailure }

// Unwrap returns [ErrServerFailure].
func (e *ServerError) Unwrap() error { return ErrServerFailure }

// BadResponseError is returned when the service responds with a status code
// outside the accepted set for the call (e.g. 404 for a wrong URL), or when
// the connection fails at a level below HTTP, in which case StatusCode is 0.
type BadResponseError struct {
	// Method is the HTTP method of the failed request.
	Method string

	// URL is the full request URL.
	URL string

	// StatusCode is the HTTP status code received, or 0 if the connection
	// failed before a status line was read.
	StatusCode int

	// Flash is the value of the X-Fbq-Flash diagnostic header, if present.
	Flash string

	// Elapsed is the time the exchange took.
	Elapsed time.Duration

	// cause is the underlying transport error when StatusCode is 0.
	cause error
}

// Error implements the error interface.
func (e *BadResponseError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fbq: %s %s failed without an HTTP status (code 0): %v",
			e.Method, e.URL, e.cause)
	}
	msg := fmt.Sprintf("fbq: %s %s returned unexpected status %d in %s",
		e.Method, e.URL, e.StatusCode, e.Elapsed.Round(time.Millisecond))
	if e.Flash != "" {
		msg += fmt.Sprintf(" (%s)", e.Flash)
	}
	return msg
}

// Is enables errors.Is matching against [ErrBadResponse].
func (e *BadResponseError) Is(target error) bool { return target == ErrBadResponse }

// Unwrap returns the underlying transport error when the connection failed
// below HTTP, and [ErrBadResponse] otherwise.
func (e *BadResponseError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrBadResponse
}
