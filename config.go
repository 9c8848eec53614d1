package courier

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/courier/broker"
)

// Ledger backends.
const (
	LedgerMemory = "memory"
	LedgerKV     = "kv"
	LedgerNone   = "none"
)

// NATSConfig configures the broker connection.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`

	// Name is the client connection name reported to the server.
	Name string `yaml:"name"`
}

// ConsumerConfig tunes the JetStream adapter.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type ConsumerConfig struct {
	// StreamName is the JetStream stream holding every courier subject.
	StreamName string `yaml:"streamName"`

	// StreamSubjects are the subjects captured by the stream.
	StreamSubjects []string `yaml:"streamSubjects"`

	// ConsumerPrefix prefixes durable consumer names (<prefix>-<subject>).
	ConsumerPrefix string `yaml:"consumerPrefix"`

	// MaxInFlight bounds concurrently handled deliveries per subject.
	MaxInFlight int `yaml:"maxInFlight"`

	// BatchSize is the number of messages buffered per pull request.
	BatchSize int `yaml:"batchSize"`

	// AckWait is how long JetStream waits for an ack before redelivering.
	// Must exceed the slowest handler, including dead-letter publishing.
	AckWait time.Duration `yaml:"ackWait"`

	// FetchTimeout is the pull request expiry; heartbeats run at half of it.
	FetchTimeout time.Duration `yaml:"fetchTimeout"`

	// MaxRetries is the number of publish and consumer-setup retries.
	MaxRetries int `yaml:"maxRetries"`

	// RetryBackoff is the base delay between retries.
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// ResequencerConfig configures fragment reassembly.
type ResequencerConfig struct {
	// InboundSubject carries fragments.
	InboundSubject string `yaml:"inboundSubject"`

	// OutputSubject receives reassembled payloads when the publish sink is used.
	OutputSubject string `yaml:"outputSubject"`

	// DeadLetterSubject receives rejected fragments with reject_reason metadata.
	DeadLetterSubject string `yaml:"deadLetterSubject"`

	// StaleAfter is how long an incomplete group may go without a new fragment
	// before it is evicted.
	StaleAfter time.Duration `yaml:"staleAfter"`

	// EvictInterval is how often the janitor evicts stale groups and prunes the ledger.
	EvictInterval time.Duration `yaml:"evictInterval"`

	// Shards is the fragment store shard count (rounded up to a power of two).
	Shards int `yaml:"shards"`

	// ForwardRetryBackoff is the first delay before re-forwarding a parked payload.
	ForwardRetryBackoff time.Duration `yaml:"forwardRetryBackoff"`

	// ForwardRetryMaxBackoff caps the parked payload retry delay.
	ForwardRetryMaxBackoff time.Duration `yaml:"forwardRetryMaxBackoff"`
}

// LedgerConfig configures the completed-groups ledger.
type LedgerConfig struct {
	// Backend is "memory" (default), "kv" (JetStream KV bucket) or "none".
	Backend string `yaml:"backend"`

	// Bucket is the KV bucket name for the "kv" backend.
	Bucket string `yaml:"bucket"`

	// Retention is how long completed group ids are remembered.
	Retention time.Duration `yaml:"retention"`
}

// RouterConfig configures readiness routing.
type RouterConfig struct {
	// WorkSubject carries work items from producers.
	WorkSubject string `yaml:"workSubject"`

	// ReadySubject carries worker readiness signals.
	ReadySubject string `yaml:"readySubject"`

	// DispatchTimeout requeues a dispatched item to the backlog head when its
	// worker does not signal readiness again in time. Zero disables it.
	DispatchTimeout time.Duration `yaml:"dispatchTimeout"`

	// SweepInterval is how often the router requeues timed-out dispatches and
	// drains a backlog left behind by failed dispatches. Negative disables the sweeper.
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// MetricsConfig configures Prometheus exposition for the CLI.
type MetricsConfig struct {
	// Enabled turns on the Prometheus collector.
	Enabled bool `yaml:"enabled"`

	// Namespace is the Prometheus metric namespace.
	Namespace string `yaml:"namespace"`

	// ListenAddr serves /metrics when Enabled.
	ListenAddr string `yaml:"listenAddr"`
}

// LogConfig configures logging for the CLI.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Config is the configuration for the Resequencer, Router and CLI.
type Config struct {
	NATS        NATSConfig        `yaml:"nats"`
	Consumer    ConsumerConfig    `yaml:"consumer"`
	Resequencer ResequencerConfig `yaml:"resequencer"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Router      RouterConfig      `yaml:"router"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		NATS: NATSConfig{
			URL:  "nats://127.0.0.1:4222",
			Name: "courier",
		},
		Consumer: ConsumerConfig{
			StreamName:     broker.DefaultStreamName,
			StreamSubjects: []string{"courier.>"},
			ConsumerPrefix: broker.DefaultConsumerPrefix,
			MaxInFlight:    broker.DefaultMaxInFlight,
			BatchSize:      broker.DefaultBatchSize,
			AckWait:        broker.DefaultAckWait,
			FetchTimeout:   broker.DefaultFetchTimeout,
			MaxRetries:     broker.DefaultMaxRetries,
			RetryBackoff:   broker.DefaultRetryBackoff,
		},
		Resequencer: ResequencerConfig{
			InboundSubject:         "courier.fragments",
			OutputSubject:          "courier.reassembled",
			DeadLetterSubject:      "courier.deadletter",
			StaleAfter:             5 * time.Minute,
			EvictInterval:          30 * time.Second,
			Shards:                 32,
			ForwardRetryBackoff:    500 * time.Millisecond,
			ForwardRetryMaxBackoff: 30 * time.Second,
		},
		Ledger: LedgerConfig{
			Backend:   LedgerMemory,
			Bucket:    "courier-completed",
			Retention: 10 * time.Minute,
		},
		Router: RouterConfig{
			WorkSubject:     "courier.work",
			ReadySubject:    "courier.ready",
			DispatchTimeout: 0,
			SweepInterval:   time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			Namespace:  "courier",
			ListenAddr: ":9090",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Zero DispatchTimeout is kept (timeout requeue disabled). Zero SweepInterval
// takes the default; set a negative value to disable the sweeper.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = defaults.NATS.URL
	}
	if cfg.NATS.Name == "" {
		cfg.NATS.Name = defaults.NATS.Name
	}

	c, dc := &cfg.Consumer, defaults.Consumer
	if c.StreamName == "" {
		c.StreamName = dc.StreamName
	}
	if len(c.StreamSubjects) == 0 {
		c.StreamSubjects = dc.StreamSubjects
	}
	if c.ConsumerPrefix == "" {
		c.ConsumerPrefix = dc.ConsumerPrefix
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = dc.MaxInFlight
	}
	if c.BatchSize == 0 {
		c.BatchSize = dc.BatchSize
	}
	if c.AckWait == 0 {
		c.AckWait = dc.AckWait
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = dc.FetchTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = dc.MaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = dc.RetryBackoff
	}

	r, dr := &cfg.Resequencer, defaults.Resequencer
	if r.InboundSubject == "" {
		r.InboundSubject = dr.InboundSubject
	}
	if r.OutputSubject == "" {
		r.OutputSubject = dr.OutputSubject
	}
	if r.DeadLetterSubject == "" {
		r.DeadLetterSubject = dr.DeadLetterSubject
	}
	if r.StaleAfter == 0 {
		r.StaleAfter = dr.StaleAfter
	}
	if r.EvictInterval == 0 {
		r.EvictInterval = dr.EvictInterval
	}
	if r.Shards == 0 {
		r.Shards = dr.Shards
	}
	if r.ForwardRetryBackoff == 0 {
		r.ForwardRetryBackoff = dr.ForwardRetryBackoff
	}
	if r.ForwardRetryMaxBackoff == 0 {
		r.ForwardRetryMaxBackoff = dr.ForwardRetryMaxBackoff
	}

	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = defaults.Ledger.Backend
	}
	if cfg.Ledger.Bucket == "" {
		cfg.Ledger.Bucket = defaults.Ledger.Bucket
	}
	if cfg.Ledger.Retention == 0 && cfg.Ledger.Backend != LedgerNone {
		cfg.Ledger.Retention = defaults.Ledger.Retention
	}

	if cfg.Router.WorkSubject == "" {
		cfg.Router.WorkSubject = defaults.Router.WorkSubject
	}
	if cfg.Router.ReadySubject == "" {
		cfg.Router.ReadySubject = defaults.Router.ReadySubject
	}
	if cfg.Router.SweepInterval == 0 {
		cfg.Router.SweepInterval = defaults.Router.SweepInterval
	}
	// Note: DispatchTimeout of 0 is valid (timeout requeue disabled), so we don't apply default

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = defaults.Metrics.ListenAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - Subjects are non-empty; inbound differs from dead-letter, work differs from ready
//   - StaleAfter > 0 and 0 < EvictInterval <= StaleAfter
//   - ForwardRetryBackoff > 0 and ForwardRetryMaxBackoff >= ForwardRetryBackoff
//   - Ledger backend is memory, kv or none; kv needs a bucket and Retention > 0
//   - DispatchTimeout >= 0; when > 0 the sweeper must be enabled
//   - MaxInFlight >= 1
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	r := cfg.Resequencer
	if r.InboundSubject == "" || r.DeadLetterSubject == "" {
		fail("resequencer inbound and dead-letter subjects are required")
	}
	if r.InboundSubject != "" && r.InboundSubject == r.DeadLetterSubject {
		fail("resequencer dead-letter subject must differ from inbound subject %q", r.InboundSubject)
	}
	if r.StaleAfter <= 0 {
		fail("StaleAfter must be > 0, got %v", r.StaleAfter)
	}
	if r.EvictInterval <= 0 || r.EvictInterval > r.StaleAfter {
		fail("EvictInterval (%v) must be > 0 and <= StaleAfter (%v)", r.EvictInterval, r.StaleAfter)
	}
	if r.ForwardRetryBackoff <= 0 || r.ForwardRetryMaxBackoff < r.ForwardRetryBackoff {
		fail("ForwardRetryBackoff (%v) must be > 0 and <= ForwardRetryMaxBackoff (%v)",
			r.ForwardRetryBackoff, r.ForwardRetryMaxBackoff)
	}

	switch cfg.Ledger.Backend {
	case LedgerMemory:
		if cfg.Ledger.Retention < 0 {
			fail("ledger retention must be >= 0, got %v", cfg.Ledger.Retention)
		}
	case LedgerKV:
		if cfg.Ledger.Bucket == "" {
			fail("ledger bucket is required for the kv backend")
		}
		if cfg.Ledger.Retention <= 0 {
			fail("ledger retention must be > 0 for the kv backend, got %v", cfg.Ledger.Retention)
		}
	case LedgerNone:
	default:
		fail("unknown ledger backend %q (want memory, kv or none)", cfg.Ledger.Backend)
	}

	rt := cfg.Router
	if rt.WorkSubject == "" || rt.ReadySubject == "" {
		fail("router work and ready subjects are required")
	}
	if rt.WorkSubject != "" && rt.WorkSubject == rt.ReadySubject {
		fail("router ready subject must differ from work subject %q", rt.WorkSubject)
	}
	if rt.DispatchTimeout < 0 {
		fail("DispatchTimeout must be >= 0, got %v", rt.DispatchTimeout)
	}
	if rt.DispatchTimeout > 0 && rt.SweepInterval <= 0 {
		fail("SweepInterval must be > 0 when DispatchTimeout (%v) is set", rt.DispatchTimeout)
	}

	if cfg.Consumer.MaxInFlight < 1 {
		fail("MaxInFlight must be >= 1, got %d", cfg.Consumer.MaxInFlight)
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// ValidateWithWarnings logs warnings for values that are valid but not recommended.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Ledger.Backend != LedgerNone && cfg.Ledger.Retention > 0 && cfg.Ledger.Retention < cfg.Consumer.AckWait {
		logger.Warn(
			"ledger retention is shorter than AckWait; redelivered fragments of completed groups may start new groups",
			"retention", cfg.Ledger.Retention,
			"ackWait", cfg.Consumer.AckWait,
		)
	}

	if cfg.Ledger.Backend == LedgerNone || cfg.Ledger.Retention == 0 {
		logger.Warn("completed-groups ledger disabled; redelivered fragments of completed groups start new groups")
	}

	if cfg.Router.DispatchTimeout > 0 && cfg.Router.DispatchTimeout < cfg.Router.SweepInterval {
		logger.Warn(
			"DispatchTimeout is shorter than SweepInterval; timed-out items are requeued late",
			"dispatchTimeout", cfg.Router.DispatchTimeout,
			"sweepInterval", cfg.Router.SweepInterval,
		)
	}

	if cfg.Router.SweepInterval < 0 {
		logger.Warn(
			"router sweeper disabled; items requeued after a failed dispatch wait for the next work item or readiness signal",
			"sweepInterval", cfg.Router.SweepInterval,
		)
	}

	if cfg.Resequencer.StaleAfter < cfg.Consumer.AckWait {
		logger.Warn(
			"StaleAfter is shorter than AckWait; slow groups may be evicted before redelivery completes them",
			"staleAfter", cfg.Resequencer.StaleAfter,
			"ackWait", cfg.Consumer.AckWait,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Example:
//
//	cfg := courier.TestConfig()
//	cfg.Router.DispatchTimeout = 200 * time.Millisecond
//	router, err := courier.NewRouter(&cfg, bus)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Consumer.AckWait = 2 * time.Second
	cfg.Consumer.FetchTimeout = time.Second
	cfg.Consumer.RetryBackoff = 10 * time.Millisecond
	cfg.Resequencer.StaleAfter = 2 * time.Second
	cfg.Resequencer.EvictInterval = 100 * time.Millisecond
	cfg.Resequencer.ForwardRetryBackoff = 20 * time.Millisecond
	cfg.Resequencer.ForwardRetryMaxBackoff = 200 * time.Millisecond
	cfg.Ledger.Retention = 5 * time.Second
	cfg.Router.SweepInterval = 50 * time.Millisecond

	return cfg
}

// LoadConfig loads configuration from a YAML file, applies defaults and validates it.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded configuration with defaults applied
//   - error: Error if the file cannot be read, parsed or validated
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	SetDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// BrokerConfig converts the consumer section into a broker.Config.
func (cfg *Config) BrokerConfig(logger Logger, metrics MetricsCollector) broker.Config {
	return broker.Config{
		StreamName:     cfg.Consumer.StreamName,
		ConsumerPrefix: cfg.Consumer.ConsumerPrefix,
		AckWait:        cfg.Consumer.AckWait,
		BatchSize:      cfg.Consumer.BatchSize,
		FetchTimeout:   cfg.Consumer.FetchTimeout,
		MaxInFlight:    cfg.Consumer.MaxInFlight,
		MaxRetries:     cfg.Consumer.MaxRetries,
		RetryBackoff:   cfg.Consumer.RetryBackoff,
		Logger:         logger,
		Metrics:        metrics,
	}
}
