package api

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError reports a request that did not complete: transport failure,
// timeout, unreadable body, or a server-side (5xx) failure.
type NetworkError struct {
	Op         string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConflictError reports an operation on an identity the service no longer
// has, e.g. deleting a check that is already gone.
type ConflictError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict (%d): %s", e.Op, e.StatusCode, e.Message)
}

// ValidationError reports input rejected as malformed, either locally before
// a request is made or by the service.
type ValidationError struct {
	Op      string
	Field   string // empty when the service did not say
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: invalid input: %s", e.Op, e.Message)
}

// classifyStatus turns a non-2xx response into one of the typed errors.
func classifyStatus(op string, code int, body []byte) error {
	msg := string(body)
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Op: op, Message: msg}
	case http.StatusNotFound, http.StatusConflict, http.StatusGone:
		return &ConflictError{Op: op, StatusCode: code, Message: msg}
	default:
		return &NetworkError{Op: op, StatusCode: code, Err: errors.New(msg)}
	}
}

// IsConflict reports whether err is or wraps a [*ConflictError].
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is or wraps a [*ValidationError].
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNetwork reports whether err is or wraps a [*NetworkError].
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
