package courier

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/courier/internal/fragstore"
	"github.com/arloliu/courier/internal/hooks"
	"github.com/arloliu/courier/internal/ledger"
	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/internal/metrics"
	"github.com/arloliu/courier/types"
)

// Resequencer reassembles fragment groups consumed from the inbound subject.
//
// Each delivery is parsed into a Fragment and stored. Outcomes:
//   - Incomplete: the delivery is acknowledged.
//   - Completed: the payload is emitted to the Sink, then the delivery is
//     acknowledged. A failed emit parks the payload and retries it in the
//     background; the delivery is still acknowledged.
//   - Rejected: the delivery is published to the dead-letter subject with
//     reject_reason metadata, then acknowledged. If the dead-letter publish
//     fails the delivery is rejected with requeue so nothing is dropped.
//
// Resequencer is safe for concurrent use; each delivery runs on its own task.
type Resequencer struct {
	cfg     ResequencerConfig
	bus     Broker
	sink    Sink
	store   *fragstore.Store
	ledger  CompletionLedger
	logger  Logger
	metrics MetricsCollector
	hooks   Hooks
	now     func() time.Time

	// parked is keyed by a per-park sequence; a group id may complete again
	// while an earlier payload of the same id is still parked.
	parked    *xsync.Map[uint64, *parkedForward]
	parkedSeq atomic.Uint64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	lastErr error
}

// parkedForward is a completed payload whose emit failed.
type parkedForward struct {
	key         uint64
	groupID     string
	payload     []byte
	attempts    int
	delay       time.Duration
	nextAttempt time.Time
	lastErr     error
}

// ResequencerStats is a point-in-time snapshot of resequencer state.
type ResequencerStats struct {
	// PendingGroups is the number of incomplete groups held in memory.
	PendingGroups int

	// ParkedForwards is the number of completed payloads awaiting re-emit.
	ParkedForwards int

	// Running reports whether the resequencer is consuming.
	Running bool
}

// NewResequencer creates a Resequencer.
//
// Parameters:
//   - cfg: Configuration; defaults are applied to a copy and the copy is validated
//   - bus: Broker used to consume fragments and publish dead letters
//   - sink: Destination of reassembled payloads (see NewPublishSink)
//   - opts: Optional logger, metrics, hooks, ledger and clock
//
// Returns:
//   - *Resequencer: Resequencer ready to Start
//   - error: ErrBrokerRequired, ErrSinkRequired or a validation error
//
// Example:
//
//	cfg := courier.DefaultConfig()
//	bus, _ := broker.NewFromConn(nc, cfg.BrokerConfig(logger, nil))
//	sink := courier.NewPublishSink(bus, cfg.Resequencer.OutputSubject)
//	rs, err := courier.NewResequencer(&cfg, bus, sink, courier.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := rs.Start(ctx); err != nil {
//	    return err
//	}
//	defer rs.Stop(context.Background())
func NewResequencer(cfg *Config, bus Broker, sink Sink, opts ...Option) (*Resequencer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if bus == nil {
		return nil, ErrBrokerRequired
	}
	if sink == nil {
		return nil, ErrSinkRequired
	}

	c := *cfg
	SetDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNop()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.ledger == nil {
		retention := c.Ledger.Retention
		if c.Ledger.Backend == LedgerNone {
			retention = 0
		}
		o.ledger = ledger.NewMemory(retention, o.clock)
	}

	c.ValidateWithWarnings(o.logger)

	return &Resequencer{
		cfg:     c.Resequencer,
		bus:     bus,
		sink:    sink,
		store:   fragstore.New(fragstore.WithShards(c.Resequencer.Shards), fragstore.WithClock(o.clock)),
		ledger:  o.ledger,
		logger:  o.logger,
		metrics: o.metrics,
		hooks:   hooks.Merge(o.hooks),
		now:     o.clock,
		parked:  xsync.NewMap[uint64, *parkedForward](),
	}, nil
}

// Start begins consuming the inbound subject in the background.
//
// Start can be called again after the consumer stopped with a bus error
// (see Done and Err) to resume consumption. Buffered groups, parked payloads
// and the completed-groups ledger survive the restart, so groups completed
// before the failure are not emitted twice.
//
// Returns:
//   - error: ErrAlreadyStarted if already running
func (r *Resequencer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.doneCh = make(chan struct{})
	r.started = true
	r.lastErr = nil

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.janitorLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		r.forwardLoop(runCtx)
	}()

	go r.consume(runCtx, cancel, &wg, r.doneCh)

	r.logger.Info("resequencer started", "subject", r.cfg.InboundSubject, "deadLetter", r.cfg.DeadLetterSubject)

	return nil
}

func (r *Resequencer) consume(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, doneCh chan struct{}) {
	defer close(doneCh)

	err := r.bus.Consume(ctx, r.cfg.InboundSubject, r)
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("resequencer consume stopped", "subject", r.cfg.InboundSubject, "error", err)
		_ = r.hooks.OnError(context.Background(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		r.lastErr = err
	}
	if r.doneCh == doneCh {
		r.started = false
	}
}

// Stop stops consuming and waits for in-flight deliveries to finish.
//
// Returns:
//   - error: ErrNotStarted if not running, or ctx.Err() if ctx expires first
func (r *Resequencer) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	cancel, doneCh := r.cancel, r.doneCh
	r.mu.Unlock()

	cancel()

	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.logger.Info("resequencer stopped", "pendingGroups", r.store.Len(), "parkedForwards", r.parked.Size())

	return nil
}

// Done returns a channel closed when the current consumption run ends.
// Returns nil before the first Start.
func (r *Resequencer) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.doneCh
}

// Err returns the error that ended the last consumption run, nil after a clean Stop.
func (r *Resequencer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastErr
}

// Stats returns a snapshot of the resequencer state.
func (r *Resequencer) Stats() ResequencerStats {
	r.mu.Lock()
	running := r.started
	r.mu.Unlock()

	return ResequencerStats{
		PendingGroups:  r.store.Len(),
		ParkedForwards: r.parked.Size(),
		Running:        running,
	}
}

// HandleDelivery processes one fragment delivery. It implements DeliveryHandler.
func (r *Resequencer) HandleDelivery(ctx context.Context, d Delivery) {
	frag, err := types.FragmentFromHeaders(d.Data(), d.Headers())
	if err != nil {
		r.metrics.RecordFragment(StatusRejected.String())
		r.deadLetter(ctx, d, RejectMalformedHeaders, err.Error())

		return
	}
	frag.ReceivedAt = r.now()

	seen, err := r.ledger.Seen(ctx, frag.GroupID)
	if err != nil {
		r.logger.Error("ledger lookup failed, requeueing fragment", "groupID", frag.GroupID, "error", err)
		_ = r.hooks.OnError(ctx, err)
		r.reject(d, true)

		return
	}
	if seen {
		r.metrics.RecordFragment(StatusRejected.String())
		r.deadLetter(ctx, d, RejectAlreadyCompleted, fmt.Sprintf("group %s completed within ledger retention", frag.GroupID))

		return
	}

	status := r.store.Put(frag)
	r.metrics.RecordFragment(status.Kind.String())

	switch status.Kind {
	case StatusRejected:
		detail := (&RejectError{Reason: status.Reason, GroupID: frag.GroupID, Position: frag.Position}).Error()
		r.deadLetter(ctx, d, status.Reason, detail)

		return
	case StatusCompleted:
		r.complete(ctx, frag, status)
	case StatusIncomplete:
	}

	r.ack(d)
}

// EvictStale removes groups idle longer than StaleAfter and returns how many were removed.
//
// The janitor calls it every EvictInterval while running.
func (r *Resequencer) EvictStale() int {
	n := r.store.EvictStale(r.cfg.StaleAfter)
	if n > 0 {
		r.metrics.RecordGroupsEvicted(n)
		r.logger.Info("evicted stale fragment groups", "count", n, "staleAfter", r.cfg.StaleAfter)
	}
	r.metrics.SetPendingGroups(r.store.Len())

	return n
}

func (r *Resequencer) complete(ctx context.Context, frag Fragment, status GroupStatus) {
	if err := r.ledger.Record(ctx, frag.GroupID); err != nil {
		r.logger.Warn("failed to record completed group", "groupID", frag.GroupID, "error", err)
		_ = r.hooks.OnError(ctx, err)
	}
	r.metrics.RecordGroupCompleted(frag.Total, status.Span.Seconds())

	if err := r.sink.Emit(ctx, frag.GroupID, status.Payload); err != nil {
		r.park(frag.GroupID, status.Payload, err)
		r.logger.Warn("forward of reassembled payload failed, parked for retry",
			"groupID", frag.GroupID, "size", len(status.Payload), "error", err)
		_ = r.hooks.OnError(ctx, fmt.Errorf("forward group %s: %w", frag.GroupID, err))

		return
	}

	r.logger.Debug("group reassembled", "groupID", frag.GroupID, "fragments", frag.Total, "size", len(status.Payload))
	_ = r.hooks.OnGroupCompleted(ctx, frag.GroupID, len(status.Payload))
}

// deadLetter publishes d to the dead-letter subject and acks it.
func (r *Resequencer) deadLetter(ctx context.Context, d Delivery, reason RejectReason, detail string) {
	headers := d.Headers().Clone()
	headers[HeaderRejectReason] = reason.String()
	headers[HeaderRejectDetail] = detail
	headers[HeaderOriginalSubject] = d.Subject()

	if err := r.bus.Publish(ctx, r.cfg.DeadLetterSubject, d.Data(), headers); err != nil {
		r.logger.Error("dead-letter publish failed, requeueing fragment", "reason", reason, "error", err)
		_ = r.hooks.OnError(ctx, err)
		r.reject(d, true)

		return
	}

	r.metrics.RecordRejection(reason.String())
	r.logger.Warn("fragment dead-lettered", "reason", reason, "detail", detail)
	_ = r.hooks.OnDeadLetter(ctx, d.Subject(), reason)

	r.ack(d)
}

func (r *Resequencer) ack(d Delivery) {
	if err := d.Ack(); err != nil {
		r.logger.Error("failed to ack fragment", "subject", d.Subject(), "error", err)
	}
}

func (r *Resequencer) reject(d Delivery, requeue bool) {
	if err := d.Reject(requeue); err != nil {
		r.logger.Error("failed to reject fragment", "subject", d.Subject(), "requeue", requeue, "error", err)
	}
}

func (r *Resequencer) park(groupID string, payload []byte, err error) {
	delay := r.cfg.ForwardRetryBackoff
	key := r.parkedSeq.Add(1)
	r.parked.Store(key, &parkedForward{
		key:         key,
		groupID:     groupID,
		payload:     payload,
		attempts:    1,
		delay:       delay,
		nextAttempt: r.now().Add(delay),
		lastErr:     err,
	})
	r.metrics.SetParkedForwards(r.parked.Size())
}

// RetryParked re-emits every parked payload whose backoff elapsed.
// Returns the number of payloads delivered.
func (r *Resequencer) RetryParked(ctx context.Context) int {
	now := r.now()

	var due []*parkedForward
	r.parked.Range(func(_ uint64, p *parkedForward) bool {
		if !p.nextAttempt.After(now) {
			due = append(due, p)
		}

		return true
	})
	slices.SortFunc(due, func(a, b *parkedForward) int { return cmp.Compare(a.key, b.key) })

	delivered := 0
	for _, p := range due {
		if ctx.Err() != nil {
			break
		}

		err := r.sink.Emit(ctx, p.groupID, p.payload)
		if err == nil {
			r.replaceParked(p, nil)
			delivered++
			r.logger.Info("parked payload forwarded", "groupID", p.groupID, "attempts", p.attempts+1)
			_ = r.hooks.OnGroupCompleted(ctx, p.groupID, len(p.payload))

			continue
		}

		next := &parkedForward{
			key:      p.key,
			groupID:  p.groupID,
			payload:  p.payload,
			attempts: p.attempts + 1,
			delay:    min(p.delay*2, r.cfg.ForwardRetryMaxBackoff),
			lastErr:  err,
		}
		next.nextAttempt = r.now().Add(next.delay)
		r.replaceParked(p, next)
		r.logger.Warn("parked payload forward failed", "groupID", p.groupID, "attempts", next.attempts, "nextDelay", next.delay, "error", err)
		_ = r.hooks.OnError(ctx, fmt.Errorf("forward group %s: %w", p.groupID, err))
	}
	r.metrics.SetParkedForwards(r.parked.Size())

	return delivered
}

// replaceParked swaps cur for next (deleting it when next is nil) unless
// the entry under cur.key changed in the meantime.
func (r *Resequencer) replaceParked(cur, next *parkedForward) {
	r.parked.Compute(cur.key, func(old *parkedForward, loaded bool) (*parkedForward, xsync.ComputeOp) {
		if !loaded || old != cur {
			return old, xsync.CancelOp
		}
		if next == nil {
			return nil, xsync.DeleteOp
		}

		return next, xsync.UpdateOp
	})
}

func (r *Resequencer) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictStale()
			if n := r.ledger.Prune(ctx); n > 0 {
				r.logger.Debug("pruned completed-groups ledger", "count", n)
			}
		}
	}
}

func (r *Resequencer) forwardLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ForwardRetryBackoff)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.parked.Size() > 0 {
				r.RetryParked(ctx)
			}
		}
	}
}
