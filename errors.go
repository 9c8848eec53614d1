package courier

import "github.com/arloliu/courier/types"

// Sentinel errors re-exported from the types package.
//
// Check them with errors.Is; a *RejectError matches the sentinel of its reason.
var (
	// ErrTotalMismatch is returned when a fragment's total differs from its group's total.
	ErrTotalMismatch = types.ErrTotalMismatch

	// ErrPositionOutOfRange is returned when a fragment position is outside [1, total].
	ErrPositionOutOfRange = types.ErrPositionOutOfRange

	// ErrDuplicatePosition is returned when a group slot is already filled.
	ErrDuplicatePosition = types.ErrDuplicatePosition

	// ErrInvalidTotal is returned when a fragment declares a total below 1.
	ErrInvalidTotal = types.ErrInvalidTotal

	// ErrMalformedHeaders is returned when group_id, position or total are missing or mistyped.
	ErrMalformedHeaders = types.ErrMalformedHeaders

	// ErrAlreadyCompleted is returned for fragments of a recently completed group.
	ErrAlreadyCompleted = types.ErrAlreadyCompleted

	// ErrPublish indicates a destination did not accept a message.
	ErrPublish = types.ErrPublish

	// ErrBus indicates the broker connection failed; call Start again after reconnecting.
	ErrBus = types.ErrBus

	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrBrokerRequired is returned when the broker is nil.
	ErrBrokerRequired = types.ErrBrokerRequired

	// ErrSinkRequired is returned when the resequencer sink is nil.
	ErrSinkRequired = types.ErrSinkRequired

	// ErrAlreadyStarted is returned when Start is called on a running component.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when Stop is called on a stopped component.
	ErrNotStarted = types.ErrNotStarted

	// ErrInvalidWorkerID is returned when a readiness signal carries no worker ID.
	ErrInvalidWorkerID = types.ErrInvalidWorkerID
)
