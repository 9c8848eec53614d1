package types

import "time"

// WorkState is the lifecycle state of a router work item.
//
//	Queued → Dispatched → Acknowledged
//	                    ↘ Requeued → Queued
type WorkState int

const (
	// WorkQueued means the item waits in the backlog.
	WorkQueued WorkState = iota

	// WorkDispatched means the item was published to a worker.
	WorkDispatched

	// WorkAcknowledged means the worker signalled readiness after receiving the item.
	WorkAcknowledged

	// WorkRequeued means dispatch failed or timed out and the item returned to the backlog head.
	WorkRequeued
)

// String returns the string representation of the state.
func (s WorkState) String() string {
	switch s {
	case WorkQueued:
		return "Queued"
	case WorkDispatched:
		return "Dispatched"
	case WorkAcknowledged:
		return "Acknowledged"
	case WorkRequeued:
		return "Requeued"
	default:
		return "Unknown"
	}
}

// WorkItem is an opaque unit of work routed to one worker.
type WorkItem struct {
	// ID uniquely identifies the item for logging and dispatch tracking.
	ID string

	// Seq is the arrival order assigned by the router.
	Seq uint64

	// Payload is forwarded unchanged to the worker.
	Payload []byte

	// Headers are forwarded to the worker with the work_id header added.
	Headers Headers

	// EnqueuedAt is the arrival time.
	EnqueuedAt time.Time

	// Attempts counts dispatch attempts.
	Attempts int
}

// ReadinessRecord tracks the most recent readiness signal of a worker.
type ReadinessRecord struct {
	WorkerID    string
	LastReadyAt time.Time
}
