// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/arloliu/courier/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	rs, err := courier.NewResequencer(&cfg, broker, sink, courier.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ResequencerMetrics implementation

// RecordFragment discards the fragment outcome metric.
func (n *NopMetrics) RecordFragment(_ /* status */ string) {}

// RecordRejection discards the rejection metric.
func (n *NopMetrics) RecordRejection(_ /* reason */ string) {}

// RecordGroupCompleted discards the group completion metric.
func (n *NopMetrics) RecordGroupCompleted(_ /* fragments */ int, _ /* seconds */ float64) {}

// RecordGroupsEvicted discards the eviction metric.
func (n *NopMetrics) RecordGroupsEvicted(_ /* count */ int) {}

// SetPendingGroups discards the pending groups gauge.
func (n *NopMetrics) SetPendingGroups(_ /* count */ int) {}

// SetParkedForwards discards the parked forwards gauge.
func (n *NopMetrics) SetParkedForwards(_ /* count */ int) {}

// RouterMetrics implementation

// RecordDispatch discards the dispatch metric.
func (n *NopMetrics) RecordDispatch(_ /* result */ string) {}

// RecordRequeue discards the requeue metric.
func (n *NopMetrics) RecordRequeue(_ /* reason */ string) {}

// RecordReadySignal discards the readiness signal metric.
func (n *NopMetrics) RecordReadySignal() {}

// RecordQueueWait discards the queue wait metric.
func (n *NopMetrics) RecordQueueWait(_ /* seconds */ float64) {}

// SetBacklogLength discards the backlog gauge.
func (n *NopMetrics) SetBacklogLength(_ /* count */ int) {}

// SetReadyWorkers discards the ready workers gauge.
func (n *NopMetrics) SetReadyWorkers(_ /* count */ int) {}

// ConsumerMetrics implementation

// IncrementPublishRetry discards the publish retry counter.
func (n *NopMetrics) IncrementPublishRetry(_ /* destination */ string) {}

// RecordRetryBackoff discards the backoff metric.
func (n *NopMetrics) RecordRetryBackoff(_ /* op */ string, _ /* seconds */ float64) {}

// IncrementIteratorRestart discards the iterator restart counter.
func (n *NopMetrics) IncrementIteratorRestart(_ /* reason */ string) {}

// SetInFlight discards the in-flight gauge.
func (n *NopMetrics) SetInFlight(_ /* count */ int) {}
