package broker

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/internal/metrics"
	"github.com/arloliu/courier/types"
)

// Config configures the JetStream adapter.
//
// Zero values are replaced by defaults via applyDefaults().
type Config struct {
	// StreamName is the stream the durable consumers are bound to.
	StreamName string

	// ConsumerPrefix prefixes durable consumer names.
	ConsumerPrefix string

	// Storage is the stream storage used by EnsureStream (zero value = file).
	Storage jetstream.StorageType

	AckWait           time.Duration
	MaxDeliver        int
	InactiveThreshold time.Duration

	BatchSize    int
	MaxWaiting   int
	FetchTimeout time.Duration

	// MaxInFlight bounds concurrently running handlers per Consume call.
	MaxInFlight int

	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffCap time.Duration
	RetryMultiplier float64

	// RetrySeed makes jitter deterministic when non-zero (tests only).
	RetrySeed int64

	// MaxIteratorFailures is the number of consecutive iterator failures
	// before Consume gives up with ErrBus.
	MaxIteratorFailures int

	Logger  types.Logger
	Metrics types.MetricsCollector
}

// applyDefaults fills unset optional fields with project defaults.
func (cfg *Config) applyDefaults() {
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultStreamName
	}
	if cfg.ConsumerPrefix == "" {
		cfg.ConsumerPrefix = DefaultConsumerPrefix
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = DefaultAckWait
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = DefaultMaxDeliver
	}
	if cfg.InactiveThreshold == 0 {
		cfg.InactiveThreshold = DefaultInactiveThreshold
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxWaiting == 0 {
		cfg.MaxWaiting = DefaultMaxWaiting
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.RetryBackoffCap == 0 {
		cfg.RetryBackoffCap = DefaultRetryBackoffCap
	}
	if cfg.RetryMultiplier == 0 {
		cfg.RetryMultiplier = DefaultRetryMultiplier
	}
	if cfg.MaxIteratorFailures == 0 {
		cfg.MaxIteratorFailures = DefaultMaxIteratorFailures
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
}

// consumerConfig builds the durable pull consumer config for subject.
func (cfg *Config) consumerConfig(subject string) jetstream.ConsumerConfig {
	durable := sanitizeConsumerName(cfg.ConsumerPrefix + "-" + subject)

	return jetstream.ConsumerConfig{
		Name:              durable,
		Durable:           durable,
		FilterSubject:     subject,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           cfg.AckWait,
		MaxDeliver:        cfg.MaxDeliver,
		InactiveThreshold: cfg.InactiveThreshold,
		MaxWaiting:        cfg.MaxWaiting,
		MaxAckPending:     -1,
	}
}
