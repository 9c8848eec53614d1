package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the courier library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Fragment protocol errors. Terminal for the offending message: it is dead-lettered
// and acknowledged, never retried.
var (
	// ErrTotalMismatch is returned when a fragment's total differs from its group's total.
	ErrTotalMismatch = errors.New("fragment total does not match group total")

	// ErrPositionOutOfRange is returned when a fragment position is outside [1, total].
	ErrPositionOutOfRange = errors.New("fragment position out of range")

	// ErrDuplicatePosition is returned when a group slot is already filled.
	ErrDuplicatePosition = errors.New("duplicate fragment position")

	// ErrInvalidTotal is returned when a fragment declares a total below 1.
	ErrInvalidTotal = errors.New("invalid fragment total")

	// ErrMalformedHeaders is returned when required headers are missing or mistyped.
	ErrMalformedHeaders = errors.New("malformed message headers")

	// ErrAlreadyCompleted is returned when a fragment references a group that
	// completed within the ledger retention window.
	ErrAlreadyCompleted = errors.New("fragment group already completed")
)

// Transport errors.
var (
	// ErrPublish indicates the downstream destination could not accept a message.
	// Recoverable: the router requeues, the resequencer parks and retries.
	ErrPublish = errors.New("publish failed")

	// ErrBus indicates a transient failure of the broker connection.
	ErrBus = errors.New("message bus unavailable")
)

// Lifecycle errors.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBrokerRequired is returned when no broker adapter is supplied.
	ErrBrokerRequired = errors.New("broker is required")

	// ErrSinkRequired is returned when the resequencer has no downstream sink.
	ErrSinkRequired = errors.New("sink is required")

	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when Stop is called on a component that is not running.
	ErrNotStarted = errors.New("not started")

	// ErrInvalidWorkerID is returned when a readiness signal carries no worker ID.
	ErrInvalidWorkerID = errors.New("invalid worker ID")
)

// Common errors - Shared errors used across multiple components.
var (
	// ErrNoKeysFound is returned when NATS KV returns no keys (expected condition).
	ErrNoKeysFound = errors.New("no keys found")
)

// IsNoKeysFoundError checks if an error indicates that no keys were found in NATS KV.
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found, false otherwise
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}

// IsProtocolError reports whether err is a terminal fragment protocol error.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrTotalMismatch) ||
		errors.Is(err, ErrPositionOutOfRange) ||
		errors.Is(err, ErrDuplicatePosition) ||
		errors.Is(err, ErrInvalidTotal) ||
		errors.Is(err, ErrMalformedHeaders) ||
		errors.Is(err, ErrAlreadyCompleted)
}
