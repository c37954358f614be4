package coordinator

import "errors"

// Cycle errors. Use errors.Is() to classify the result of Refresh.
var (
	// ErrCycleInProgress is returned when a cycle is requested for a device
	// that is already fetching.
	ErrCycleInProgress = errors.New("coordinator: poll cycle already in progress")

	// ErrAuthFailed means the account credentials need replacing.
	// Wraps the client's auth error.
	ErrAuthFailed = errors.New("coordinator: authentication failed")

	// ErrUpdateFailed is a transient failure; the last known record is kept.
	ErrUpdateFailed = errors.New("coordinator: update failed")

	// ErrNoClient is returned when a manager is built without a client.
	ErrNoClient = errors.New("coordinator: no client configured")
)
