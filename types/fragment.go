package types

import (
	"fmt"
	"time"
)

// Fragment is one numbered piece of a larger logical message.
//
// All fragments sharing a GroupID must carry the same Total.
type Fragment struct {
	// GroupID identifies the parent message.
	GroupID string

	// Position is the 1-based index of this fragment within the group.
	Position int

	// Total is the number of fragments in the group (>= 1).
	Total int

	// Payload is the fragment body.
	Payload []byte

	// ReceivedAt is the arrival time. Zero means "now" to the store.
	ReceivedAt time.Time
}

// RejectReason names the protocol rule a fragment violated.
type RejectReason int

const (
	// RejectNone is the zero value; a status with this reason is not a rejection.
	RejectNone RejectReason = iota

	// RejectTotalMismatch means the fragment total differs from the group total.
	RejectTotalMismatch

	// RejectPositionOutOfRange means the position is outside [1, total].
	RejectPositionOutOfRange

	// RejectDuplicatePosition means the slot was already filled.
	RejectDuplicatePosition

	// RejectInvalidTotal means total < 1.
	RejectInvalidTotal

	// RejectMalformedHeaders means required headers were missing or mistyped.
	RejectMalformedHeaders

	// RejectAlreadyCompleted means the group completed recently and the id is still retained.
	RejectAlreadyCompleted
)

// String returns the wire name of the reason, used as dead-letter metadata.
func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "None"
	case RejectTotalMismatch:
		return "TotalMismatch"
	case RejectPositionOutOfRange:
		return "PositionOutOfRange"
	case RejectDuplicatePosition:
		return "DuplicatePosition"
	case RejectInvalidTotal:
		return "InvalidTotal"
	case RejectMalformedHeaders:
		return "MalformedHeaders"
	case RejectAlreadyCompleted:
		return "AlreadyCompleted"
	default:
		return "Unknown"
	}
}

// Err maps the reason to its sentinel error (nil for RejectNone).
func (r RejectReason) Err() error {
	switch r {
	case RejectTotalMismatch:
		return ErrTotalMismatch
	case RejectPositionOutOfRange:
		return ErrPositionOutOfRange
	case RejectDuplicatePosition:
		return ErrDuplicatePosition
	case RejectInvalidTotal:
		return ErrInvalidTotal
	case RejectMalformedHeaders:
		return ErrMalformedHeaders
	case RejectAlreadyCompleted:
		return ErrAlreadyCompleted
	case RejectNone:
		return nil
	default:
		return fmt.Errorf("unknown reject reason %d", int(r))
	}
}

// RejectError carries a RejectReason together with the offending group.
//
// errors.Is matches the sentinel error of the reason:
//
//	var err error = &RejectError{Reason: RejectDuplicatePosition}
//	errors.Is(err, ErrDuplicatePosition) // true
type RejectError struct {
	Reason   RejectReason
	GroupID  string
	Position int
	Detail   string
}

// Error implements error.
func (e *RejectError) Error() string {
	msg := fmt.Sprintf("fragment rejected: %s", e.Reason)
	if e.GroupID != "" {
		msg += fmt.Sprintf(" (group=%s position=%d)", e.GroupID, e.Position)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

// Unwrap returns the sentinel error for the reason.
func (e *RejectError) Unwrap() error {
	return e.Reason.Err()
}

// StatusKind classifies the outcome of storing a fragment.
type StatusKind int

const (
	// StatusIncomplete means the group still waits for fragments.
	StatusIncomplete StatusKind = iota

	// StatusCompleted means this fragment completed the group.
	StatusCompleted

	// StatusRejected means the fragment violated the protocol and was not stored.
	StatusRejected
)

// String returns the string representation of the status kind.
func (k StatusKind) String() string {
	switch k {
	case StatusIncomplete:
		return "Incomplete"
	case StatusCompleted:
		return "Completed"
	case StatusRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// GroupStatus is the result of putting a fragment into the fragment store.
type GroupStatus struct {
	Kind StatusKind

	// Payload holds the reassembled message when Kind is StatusCompleted.
	Payload []byte

	// Reason is set when Kind is StatusRejected.
	Reason RejectReason

	// Span is the time between the first and the last fragment of a completed group.
	Span time.Duration
}

// Incomplete returns a StatusIncomplete status.
func Incomplete() GroupStatus {
	return GroupStatus{Kind: StatusIncomplete}
}

// Completed returns a StatusCompleted status carrying the reassembled payload.
func Completed(payload []byte) GroupStatus {
	return GroupStatus{Kind: StatusCompleted, Payload: payload}
}

// Rejected returns a StatusRejected status with the given reason.
func Rejected(reason RejectReason) GroupStatus {
	return GroupStatus{Kind: StatusRejected, Reason: reason}
}
