package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/courier/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so that a
// collector which is never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// Resequencer metrics
	fragments      *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	groupsDone     *prometheus.CounterVec
	groupLatency   prometheus.Histogram
	groupsEvicted  prometheus.Counter
	pendingGroups  prometheus.Gauge
	parkedForwards prometheus.Gauge

	// Router metrics
	dispatches   *prometheus.CounterVec
	requeues     *prometheus.CounterVec
	readySignals prometheus.Counter
	queueWait    prometheus.Histogram
	backlog      prometheus.Gauge
	readyWorkers prometheus.Gauge

	// Broker adapter metrics
	publishRetries   *prometheus.CounterVec
	retryBackoff     *prometheus.HistogramVec
	iteratorRestarts *prometheus.CounterVec
	inFlight         prometheus.Gauge
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "courier" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "courier"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.fragments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resequencer",
			Name:      "fragments_total",
			Help:      "Total fragments processed by outcome (incomplete,completed,rejected).",
		}, []string{"status"})
		p.rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resequencer",
			Name:      "rejections_total",
			Help:      "Total dead-lettered fragments by reject reason.",
		}, []string{"reason"})
		p.groupsDone = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resequencer",
			Name:      "groups_completed_total",
			Help:      "Total reassembled groups by fragment-count bucket.",
		}, []string{"size"})
		p.groupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "resequencer",
			Name:      "group_completion_seconds",
			Help:      "Time from first fragment to group completion in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~4m
		})
		p.groupsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resequencer",
			Name:      "groups_evicted_total",
			Help:      "Total stale groups evicted before completion.",
		})
		p.pendingGroups = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "resequencer",
			Name:      "pending_groups",
			Help:      "Current number of incomplete fragment groups.",
		})
		p.parkedForwards = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "resequencer",
			Name:      "parked_forwards",
			Help:      "Current number of completed payloads awaiting a sink retry.",
		})

		p.dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "dispatches_total",
			Help:      "Total dispatch attempts by result (success,failure).",
		}, []string{"result"})
		p.requeues = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "requeues_total",
			Help:      "Total work items returned to the backlog head by reason.",
		}, []string{"reason"})
		p.readySignals = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "ready_signals_total",
			Help:      "Total worker readiness signals received.",
		})
		p.queueWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "queue_wait_seconds",
			Help:      "Time work items spent queued before dispatch in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		})
		p.backlog = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "backlog_length",
			Help:      "Current number of work items waiting for a ready worker.",
		})
		p.readyWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "ready_workers",
			Help:      "Current number of workers waiting for work.",
		})

		p.publishRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "broker",
			Name:      "publish_retries_total",
			Help:      "Total publish retry attempts by destination.",
		}, []string{"destination"})
		p.retryBackoff = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "broker",
			Name:      "retry_backoff_seconds",
			Help:      "Observed retry backoff durations in seconds by operation.",
			Buckets:   []float64{0.05, 0.1, 0.15, 0.25, 0.5, 1, 2, 5},
		}, []string{"op"})
		p.iteratorRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "broker",
			Name:      "iterator_restarts_total",
			Help:      "Total consumer iterator restarts by reason (transient,heartbeat).",
		}, []string{"reason"})
		p.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "broker",
			Name:      "in_flight_deliveries",
			Help:      "Current number of delivery handlers running.",
		})

		p.reg.MustRegister(
			p.fragments, p.rejections, p.groupsDone, p.groupLatency,
			p.groupsEvicted, p.pendingGroups, p.parkedForwards,
			p.dispatches, p.requeues, p.readySignals, p.queueWait,
			p.backlog, p.readyWorkers,
			p.publishRetries, p.retryBackoff, p.iteratorRestarts, p.inFlight,
		)
	})
}

// ResequencerMetrics implementation

// RecordFragment increments the fragment outcome counter.
func (p *PrometheusCollector) RecordFragment(status string) {
	p.ensureRegistered()
	p.fragments.WithLabelValues(status).Inc()
}

// RecordRejection increments the rejection counter for reason.
func (p *PrometheusCollector) RecordRejection(reason string) {
	p.ensureRegistered()
	p.rejections.WithLabelValues(reason).Inc()
}

// RecordGroupCompleted records a completed group.
func (p *PrometheusCollector) RecordGroupCompleted(fragments int, seconds float64) {
	p.ensureRegistered()
	p.groupsDone.WithLabelValues(sizeBucket(fragments)).Inc()
	p.groupLatency.Observe(seconds)
}

// RecordGroupsEvicted adds evicted groups.
func (p *PrometheusCollector) RecordGroupsEvicted(count int) {
	p.ensureRegistered()
	p.groupsEvicted.Add(float64(count))
}

// SetPendingGroups sets the pending groups gauge.
func (p *PrometheusCollector) SetPendingGroups(count int) {
	p.ensureRegistered()
	p.pendingGroups.Set(float64(count))
}

// SetParkedForwards sets the parked forwards gauge.
func (p *PrometheusCollector) SetParkedForwards(count int) {
	p.ensureRegistered()
	p.parkedForwards.Set(float64(count))
}

// RouterMetrics implementation

// RecordDispatch increments the dispatch counter for result.
func (p *PrometheusCollector) RecordDispatch(result string) {
	p.ensureRegistered()
	p.dispatches.WithLabelValues(result).Inc()
}

// RecordRequeue increments the requeue counter for reason.
func (p *PrometheusCollector) RecordRequeue(reason string) {
	p.ensureRegistered()
	p.requeues.WithLabelValues(reason).Inc()
}

// RecordReadySignal increments the readiness signal counter.
func (p *PrometheusCollector) RecordReadySignal() {
	p.ensureRegistered()
	p.readySignals.Inc()
}

// RecordQueueWait observes queue wait time.
func (p *PrometheusCollector) RecordQueueWait(seconds float64) {
	p.ensureRegistered()
	p.queueWait.Observe(seconds)
}

// SetBacklogLength sets the backlog gauge.
func (p *PrometheusCollector) SetBacklogLength(count int) {
	p.ensureRegistered()
	p.backlog.Set(float64(count))
}

// SetReadyWorkers sets the ready workers gauge.
func (p *PrometheusCollector) SetReadyWorkers(count int) {
	p.ensureRegistered()
	p.readyWorkers.Set(float64(count))
}

// ConsumerMetrics implementation

// IncrementPublishRetry increments publish retries for destination.
func (p *PrometheusCollector) IncrementPublishRetry(destination string) {
	p.ensureRegistered()
	p.publishRetries.WithLabelValues(destination).Inc()
}

// RecordRetryBackoff observes a backoff delay (seconds) for the given op.
func (p *PrometheusCollector) RecordRetryBackoff(op string, seconds float64) {
	p.ensureRegistered()
	p.retryBackoff.WithLabelValues(op).Observe(seconds)
}

// IncrementIteratorRestart increments iterator restarts by reason.
func (p *PrometheusCollector) IncrementIteratorRestart(reason string) {
	p.ensureRegistered()
	p.iteratorRestarts.WithLabelValues(reason).Inc()
}

// SetInFlight sets the in-flight deliveries gauge.
func (p *PrometheusCollector) SetInFlight(count int) {
	p.ensureRegistered()
	p.inFlight.Set(float64(count))
}

// sizeBucket keeps the group size label cardinality bounded.
func sizeBucket(fragments int) string {
	switch {
	case fragments <= 1:
		return "1"
	case fragments <= 4:
		return "2-4"
	case fragments <= 16:
		return "5-16"
	case fragments <= 64:
		return "17-64"
	default:
		return "65+"
	}
}
