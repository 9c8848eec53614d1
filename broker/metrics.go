package broker

import "github.com/arloliu/courier/types"

// Iterator restart reasons reported to ConsumerMetrics.
const (
	restartHeartbeat = "heartbeat"
	restartError     = "error"
	restartCreate    = "create"
)

// emitPublishRetry records one publish retry for destination.
func emitPublishRetry(mc types.MetricsCollector, destination string) {
	if mc == nil {
		return
	}
	mc.IncrementPublishRetry(destination)
}

// emitRetryBackoff records an observed backoff delay in seconds.
func emitRetryBackoff(mc types.MetricsCollector, op string, dSec float64) {
	if mc == nil {
		return
	}
	mc.RecordRetryBackoff(op, dSec)
}
