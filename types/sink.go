package types

import "context"

// Sink receives reassembled payloads from the resequencer.
//
// Emit is called once per completed group. A returned error parks the
// payload and the resequencer retries it later; implementations should be
// idempotent with respect to groupID.
type Sink interface {
	Emit(ctx context.Context, groupID string, payload []byte) error
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func(ctx context.Context, groupID string, payload []byte) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, groupID string, payload []byte) error {
	return f(ctx, groupID, payload)
}

// CompletionLedger remembers recently completed group ids.
//
// Implementations must be safe for concurrent use.
type CompletionLedger interface {
	// Seen reports whether groupID completed within the retention window.
	Seen(ctx context.Context, groupID string) (bool, error)

	// Record marks groupID as completed now.
	Record(ctx context.Context, groupID string) error

	// Prune drops expired entries and returns how many were removed.
	Prune(ctx context.Context) int
}
