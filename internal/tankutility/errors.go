package tankutility

import (
	"errors"
	"fmt"
)

// Error classes for API operations.
// Use errors.Is() to classify errors returned by Client methods.
var (
	// ErrInvalidAuth is returned when the API rejects the credentials or
	// the token is still rejected after a forced refresh.
	ErrInvalidAuth = errors.New("tankutility: invalid authentication")

	// ErrAPI matches every *APIError: non-auth HTTP failures, decode
	// failures and transport failures.
	ErrAPI = errors.New("tankutility: api error")
)

// Operation names used in errors and log records.
const (
	opToken      = "token"
	opDevices    = "device list"
	opDeviceData = "device data"
)

// msgConnection is the classification for transport-level failures
// (DNS, timeouts, connection resets).
const msgConnection = "connection error"

// APIError describes a non-authentication failure talking to the API.
type APIError struct {
	// Op is the operation that failed (e.g. "device data").
	Op string

	// StatusCode is the HTTP status, or 0 when no usable response arrived.
	StatusCode int

	// Message is a short classification of the failure.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("tankutility: %s: %s", e.Op, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// IsAuthFailure reports whether err requires new credentials.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidAuth)
}

func statusError(op string, status int) error {
	return &APIError{Op: op, StatusCode: status, Message: "request failed"}
}

func authError(op string) error {
	return fmt.Errorf("%w: %s rejected (HTTP 401)", ErrInvalidAuth, op)
}
