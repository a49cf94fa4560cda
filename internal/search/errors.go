package search

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed search call.
type ErrorKind string

// Error kinds.
const (
	KindNetwork      ErrorKind = "NETWORK"
	KindRateLimit    ErrorKind = "RATE_LIMIT"
	KindTokenInvalid ErrorKind = "TOKEN_INVALID"
	KindFacebookAPI  ErrorKind = "FACEBOOK_API"
	KindParse        ErrorKind = "PARSE"
	KindServerError  ErrorKind = "SERVER_ERROR"
)

// Retryable reports whether an item failing with this kind may be attempted again.
// PARSE is retryable but only once; see MaxAttemptsFor.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimit, KindServerError, KindParse:
		return true
	}
	return false
}

// MaxAttemptsFor caps the attempts allowed for a kind given the configured maximum.
func (k ErrorKind) MaxAttemptsFor(maxRetries int) int {
	if !k.Retryable() {
		return 1
	}
	if k == KindParse && maxRetries > 2 {
		return 2
	}
	return maxRetries
}

// Error is a classified search failure.
type Error struct {
	Err        error
	Kind       ErrorKind
	Message    string
	StatusCode int
	Code       int           // Graph API error code, 0 when absent
	RetryAfter time.Duration // Backoff requested by the API, 0 when absent
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("search %s (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("search %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind. Unclassified errors count as NETWORK since
// they originate below the HTTP layer.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindNetwork
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
