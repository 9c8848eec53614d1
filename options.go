package courier

import "time"

// Option configures a Resequencer or Router with optional dependencies.
type Option func(*options)

// options holds optional component configuration.
type options struct {
	hooks   *Hooks
	metrics MetricsCollector
	logger  Logger
	ledger  CompletionLedger
	clock   func() time.Time
}

// WithHooks sets event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewResequencer and NewRouter
//
// Example:
//
//	hooks := &courier.Hooks{
//	    OnGroupCompleted: func(ctx context.Context, groupID string, size int) error {
//	        log.Printf("group %s reassembled (%d bytes)", groupID, size)
//	        return nil
//	    },
//	}
//	rs, _ := courier.NewResequencer(&cfg, bus, sink, courier.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Example:
//
//	collector := courier.NewPrometheusMetrics(prometheus.DefaultRegisterer, "courier")
//	router, _ := courier.NewRouter(&cfg, bus, courier.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewResequencer and NewRouter
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLedger replaces the completed-groups ledger of a Resequencer.
//
// The default is an in-memory ledger sized by Config.Ledger. Use
// ledger.NewKV to share the ledger between resequencer instances.
func WithLedger(ledger CompletionLedger) Option {
	return func(o *options) {
		o.ledger = ledger
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}
