package types

import "context"

// Hooks defines callbacks for resequencer and router events.
//
// All hooks are optional. They run synchronously on the delivery task that
// produced the event, so they should complete quickly and respect ctx.
// Hook errors are logged but never change message disposition.
//
// Example:
//
//	hooks := &courier.Hooks{
//	    OnDeadLetter: func(ctx context.Context, subject string, reason courier.RejectReason) error {
//	        alerts.Inc(reason.String())
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnGroupCompleted is called after a reassembled payload was emitted to the sink.
	OnGroupCompleted func(ctx context.Context, groupID string, size int) error

	// OnDeadLetter is called after a rejected fragment was dead-lettered.
	OnDeadLetter func(ctx context.Context, subject string, reason RejectReason) error

	// OnDispatch is called after a work item was published to a worker.
	OnDispatch func(ctx context.Context, item WorkItem, workerID string) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
