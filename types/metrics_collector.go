package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from delivery tasks and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	ResequencerMetrics
	RouterMetrics
	ConsumerMetrics
}

// ResequencerMetrics defines metrics for fragment reassembly.
type ResequencerMetrics interface {
	// RecordFragment records a stored fragment outcome.
	//
	// Parameters:
	//   - status: "incomplete", "completed" or "rejected"
	RecordFragment(status string)

	// RecordRejection records a rejected fragment by reason.
	RecordRejection(reason string)

	// RecordGroupCompleted records a completed group and its reassembly latency.
	//
	// Parameters:
	//   - fragments: Number of fragments in the group
	//   - seconds: Time from first fragment to completion
	RecordGroupCompleted(fragments int, seconds float64)

	// RecordGroupsEvicted records stale groups removed by the janitor.
	RecordGroupsEvicted(count int)

	// SetPendingGroups sets the number of incomplete groups (gauge).
	SetPendingGroups(count int)

	// SetParkedForwards sets the number of completed payloads awaiting a sink retry (gauge).
	SetParkedForwards(count int)
}

// RouterMetrics defines metrics for readiness routing.
type RouterMetrics interface {
	// RecordDispatch records a dispatch attempt outcome.
	//
	// Parameters:
	//   - result: "success", "failure" or "acknowledged"
	RecordDispatch(result string)

	// RecordRequeue records a work item returned to the backlog head.
	//
	// Parameters:
	//   - reason: "publish_failure" or "timeout"
	RecordRequeue(reason string)

	// RecordReadySignal records a readiness signal.
	RecordReadySignal()

	// RecordQueueWait records how long a work item waited before dispatch.
	RecordQueueWait(seconds float64)

	// SetBacklogLength sets the backlog length (gauge).
	SetBacklogLength(count int)

	// SetReadyWorkers sets the number of ready workers (gauge).
	SetReadyWorkers(count int)
}

// ConsumerMetrics defines metrics for the broker adapter.
type ConsumerMetrics interface {
	// IncrementPublishRetry increments publish retry attempts.
	IncrementPublishRetry(destination string)

	// RecordRetryBackoff observes a retry backoff delay (seconds) for the given op.
	RecordRetryBackoff(op string, seconds float64)

	// IncrementIteratorRestart increments iterator restarts by reason.
	IncrementIteratorRestart(reason string)

	// SetInFlight sets the number of in-flight delivery tasks (gauge).
	SetInFlight(count int)
}
