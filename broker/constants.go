package broker

import "time"

// Default configuration values for the JetStream adapter.
const (
	// DefaultStreamName is the stream holding every courier subject.
	DefaultStreamName = "COURIER"

	// DefaultConsumerPrefix prefixes durable consumer names.
	DefaultConsumerPrefix = "courier"

	// DefaultBatchSize is the default number of messages buffered per pull request.
	DefaultBatchSize = 64

	// DefaultMaxWaiting is the default maximum number of outstanding pull requests.
	DefaultMaxWaiting = 512

	// DefaultFetchTimeout is the default pull expiry. Heartbeats run at half of it.
	DefaultFetchTimeout = 5 * time.Second

	// DefaultMaxInFlight is the default number of concurrently running handlers.
	DefaultMaxInFlight = 64

	// DefaultMaxRetries is the default number of retries for publish and consumer setup.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the base delay between retry attempts.
	DefaultRetryBackoff = 100 * time.Millisecond

	// DefaultRetryBackoffCap caps the jittered retry delay.
	DefaultRetryBackoffCap = 2 * time.Second

	// DefaultRetryMultiplier is the growth factor of the retry delay.
	DefaultRetryMultiplier = 1.6

	// DefaultMaxIteratorFailures is the number of consecutive iterator failures
	// tolerated before Consume reports a bus error.
	DefaultMaxIteratorFailures = 10

	// DefaultAckWait is the default duration to wait for acknowledgment.
	DefaultAckWait = 30 * time.Second

	// DefaultMaxDeliver is the default maximum delivery attempts (-1 = unlimited).
	DefaultMaxDeliver = -1

	// DefaultInactiveThreshold is the default inactive consumer cleanup threshold.
	DefaultInactiveThreshold = 24 * time.Hour
)
