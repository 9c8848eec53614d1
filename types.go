package courier

import "github.com/arloliu/courier/types"

// Re-export types from the types package.
//
// Internal packages depend on types/ rather than on the root package, which
// keeps the import graph acyclic while users still write courier.Fragment,
// courier.Logger and so on.
type (
	Fragment        = types.Fragment
	GroupStatus     = types.GroupStatus
	StatusKind      = types.StatusKind
	RejectReason    = types.RejectReason
	RejectError     = types.RejectError
	Headers         = types.Headers
	WorkItem        = types.WorkItem
	WorkState       = types.WorkState
	ReadinessRecord = types.ReadinessRecord
)

// Re-export interfaces from the types package.
type (
	Delivery            = types.Delivery
	DeliveryHandler     = types.DeliveryHandler
	DeliveryHandlerFunc = types.DeliveryHandlerFunc
	Publisher           = types.Publisher
	Consumer            = types.Consumer
	Broker              = types.Broker
	Sink                = types.Sink
	SinkFunc            = types.SinkFunc
	CompletionLedger    = types.CompletionLedger
	MetricsCollector    = types.MetricsCollector
	Logger              = types.Logger
	Hooks               = types.Hooks
)

// Re-export status kinds.
const (
	StatusIncomplete = types.StatusIncomplete
	StatusCompleted  = types.StatusCompleted
	StatusRejected   = types.StatusRejected
)

// Re-export rejection reasons.
const (
	RejectNone               = types.RejectNone
	RejectTotalMismatch      = types.RejectTotalMismatch
	RejectPositionOutOfRange = types.RejectPositionOutOfRange
	RejectDuplicatePosition  = types.RejectDuplicatePosition
	RejectInvalidTotal       = types.RejectInvalidTotal
	RejectMalformedHeaders   = types.RejectMalformedHeaders
	RejectAlreadyCompleted   = types.RejectAlreadyCompleted
)

// Re-export work item states.
const (
	WorkQueued       = types.WorkQueued
	WorkDispatched   = types.WorkDispatched
	WorkAcknowledged = types.WorkAcknowledged
	WorkRequeued     = types.WorkRequeued
)

// Re-export header names.
const (
	HeaderGroupID         = types.HeaderGroupID
	HeaderPosition        = types.HeaderPosition
	HeaderTotal           = types.HeaderTotal
	HeaderReplyTo         = types.HeaderReplyTo
	HeaderRejectReason    = types.HeaderRejectReason
	HeaderRejectDetail    = types.HeaderRejectDetail
	HeaderOriginalSubject = types.HeaderOriginalSubject
	HeaderWorkID          = types.HeaderWorkID
)

// FragmentFromHeaders builds a Fragment from a payload and its headers.
func FragmentFromHeaders(payload []byte, h Headers) (Fragment, error) {
	return types.FragmentFromHeaders(payload, h)
}
