package courier

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/courier/internal/hooks"
	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/internal/metrics"
	"github.com/arloliu/courier/internal/readiness"
)

// Requeue reasons reported to RouterMetrics.
const (
	requeuePublishFailed = "publish_failure"
	requeueTimeout       = "timeout"
)

// Dispatch results reported to RouterMetrics.
const (
	dispatchSuccess      = "success"
	dispatchFailure      = "failure"
	dispatchAcknowledged = "acknowledged"
)

// Router forwards work items to the most recently ready worker.
//
// Workers are served last-ready-first; work items are served first-in
// first-out. The per-item lifecycle is Queued → Dispatched → Acknowledged
// (the worker signalled ready again) or Requeued (publish failed, or
// DispatchTimeout elapsed). A requeued item returns to the head of the
// backlog; the worker it failed on is not marked ready again.
//
// Router is safe for concurrent use.
type Router struct {
	cfg      RouterConfig
	bus      Broker
	registry *readiness.Registry
	backlog  *readiness.Backlog
	logger   Logger
	metrics  MetricsCollector
	hooks    Hooks
	now      func() time.Time

	// decide serializes the "take a ready worker or enqueue" and
	// "dispatch the backlog head or mark ready" decisions.
	decide sync.Mutex

	// dispatched maps worker id to its outstanding item.
	dispatched *xsync.Map[string, *dispatchRecord]
	seq        atomic.Uint64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	lastErr error
}

type dispatchRecord struct {
	item         WorkItem
	workerID     string
	dispatchedAt time.Time
}

// RouterStats is a point-in-time snapshot of router state.
type RouterStats struct {
	// ReadyWorkers lists ready workers from most to least recently ready.
	ReadyWorkers []string

	// BacklogLength is the number of queued items.
	BacklogLength int

	// InFlight is the number of dispatched, not yet acknowledged items.
	InFlight int

	// Running reports whether the router is consuming.
	Running bool
}

// NewRouter creates a Router.
//
// Parameters:
//   - cfg: Configuration; defaults are applied to a copy and the copy is validated
//   - bus: Broker used to consume work and readiness signals and to publish to workers
//   - opts: Optional logger, metrics, hooks and clock
//
// Returns:
//   - *Router: Router ready to Start
//   - error: ErrBrokerRequired or a validation error
//
// Example:
//
//	router, err := courier.NewRouter(&cfg, bus, courier.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := router.Start(ctx); err != nil {
//	    return err
//	}
//	defer router.Stop(context.Background())
func NewRouter(cfg *Config, bus Broker, opts ...Option) (*Router, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if bus == nil {
		return nil, ErrBrokerRequired
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

	c.ValidateWithWarnings(o.logger)

	return &Router{
		cfg:        c.Router,
		bus:        bus,
		registry:   readiness.NewRegistry(o.clock),
		backlog:    readiness.NewBacklog(),
		logger:     o.logger,
		metrics:    o.metrics,
		hooks:      hooks.Merge(o.hooks),
		now:        o.clock,
		dispatched: xsync.NewMap[string, *dispatchRecord](),
	}, nil
}

// Start begins consuming work and readiness signals in the background.
//
// Both subjects are consumed under one errgroup: a bus error on either
// stops both. Start can then be called again to resume; the backlog and
// registry survive the restart.
//
// Returns:
//   - error: ErrAlreadyStarted if already running
func (r *Router) Start(ctx context.Context) error {
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

	go r.run(runCtx, cancel, r.doneCh)

	r.logger.Info("router started", "work", r.cfg.WorkSubject, "ready", r.cfg.ReadySubject,
		"dispatchTimeout", r.cfg.DispatchTimeout)

	return nil
}

func (r *Router) run(ctx context.Context, cancel context.CancelFunc, doneCh chan struct{}) {
	defer close(doneCh)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.bus.Consume(gctx, r.cfg.WorkSubject, DeliveryHandlerFunc(r.HandleWork))
	})
	g.Go(func() error {
		return r.bus.Consume(gctx, r.cfg.ReadySubject, DeliveryHandlerFunc(r.HandleReady))
	})
	if r.cfg.SweepInterval > 0 {
		g.Go(func() error {
			r.sweepLoop(gctx)
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("router consume stopped", "error", err)
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
func (r *Router) Stop(ctx context.Context) error {
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

	r.logger.Info("router stopped", "backlog", r.backlog.Len(), "inFlight", r.dispatched.Size())

	return nil
}

// Done returns a channel closed when the current consumption run ends.
// Returns nil before the first Start.
func (r *Router) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.doneCh
}

// Err returns the error that ended the last consumption run, nil after a clean Stop.
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastErr
}

// Stats returns a snapshot of the router state.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	running := r.started
	r.mu.Unlock()

	snap := r.registry.Snapshot()
	ready := make([]string, 0, len(snap))
	for _, rec := range snap {
		ready = append(ready, rec.WorkerID)
	}

	return RouterStats{
		ReadyWorkers:  ready,
		BacklogLength: r.backlog.Len(),
		InFlight:      r.dispatched.Size(),
		Running:       running,
	}
}

// HandleWork accepts one work delivery and acks it once the item is
// dispatched or queued.
func (r *Router) HandleWork(ctx context.Context, d Delivery) {
	headers := d.Headers().Clone()
	id, err := headers.GetString(HeaderWorkID)
	if err != nil || id == "" {
		id = uuid.NewString()
	}

	r.Submit(ctx, WorkItem{
		ID:      id,
		Payload: slices.Clone(d.Data()),
		Headers: headers,
	})

	if err := d.Ack(); err != nil {
		r.logger.Error("failed to ack work item", "workID", id, "error", err)
	}
}

// HandleReady processes one readiness signal.
//
// The worker id is the delivery source (reply_to header), falling back to
// the trimmed payload. Signals without a worker id are dropped with an error.
func (r *Router) HandleReady(ctx context.Context, d Delivery) {
	workerID := d.Source()
	if workerID == "" {
		workerID = strings.TrimSpace(string(d.Data()))
	}

	if err := r.Ready(ctx, workerID); err != nil {
		r.logger.Warn("discarding readiness signal", "subject", d.Subject(), "error", err)
		_ = r.hooks.OnError(ctx, err)
		if rejErr := d.Reject(false); rejErr != nil {
			r.logger.Error("failed to reject readiness signal", "error", rejErr)
		}

		return
	}

	if err := d.Ack(); err != nil {
		r.logger.Error("failed to ack readiness signal", "workerID", workerID, "error", err)
	}
}

// Submit routes a work item.
//
// The item is appended to the backlog and the backlog is drained while a
// ready worker exists, so with an empty backlog and a ready worker the item
// is dispatched immediately, and otherwise arrival order is kept.
//
// ID, Seq and EnqueuedAt are assigned when zero. Returns the item as queued.
func (r *Router) Submit(ctx context.Context, item WorkItem) WorkItem {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Seq == 0 {
		item.Seq = r.seq.Add(1)
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = r.now()
	}

	r.decide.Lock()
	r.backlog.PushBack(item)
	r.decide.Unlock()

	r.drain(ctx)
	r.metrics.SetBacklogLength(r.backlog.Len())

	return item
}

// Ready records a readiness signal from workerID.
//
// Any item outstanding on workerID is acknowledged. If the backlog is
// non-empty its oldest item is dispatched to workerID; otherwise workerID
// is pushed on top of the ready stack.
//
// Returns:
//   - error: ErrInvalidWorkerID for an empty id
func (r *Router) Ready(ctx context.Context, workerID string) error {
	if workerID == "" {
		return fmt.Errorf("%w: readiness signal without worker id", ErrInvalidWorkerID)
	}

	r.metrics.RecordReadySignal()
	if rec, ok := r.dispatched.LoadAndDelete(workerID); ok {
		r.metrics.RecordDispatch(dispatchAcknowledged)
		r.logger.Debug("work item acknowledged", "workID", rec.item.ID, "workerID", workerID)
	}

	r.decide.Lock()
	item, ok := r.backlog.PopFront()
	if !ok {
		r.registry.MarkReady(workerID)
		r.decide.Unlock()
		r.metrics.SetReadyWorkers(r.registry.Len())

		return nil
	}
	r.registry.Remove(workerID)
	r.decide.Unlock()

	if r.dispatch(ctx, item, workerID) == nil {
		r.metrics.SetBacklogLength(r.backlog.Len())
	}

	return nil
}

// drain dispatches backlog items while both a ready worker and an item exist.
func (r *Router) drain(ctx context.Context) {
	for {
		r.decide.Lock()
		if r.backlog.Len() == 0 {
			r.decide.Unlock()
			return
		}
		rec, ok := r.registry.TakeReady()
		if !ok {
			r.decide.Unlock()
			return
		}
		item, _ := r.backlog.PopFront()
		r.decide.Unlock()

		r.metrics.SetReadyWorkers(r.registry.Len())
		if err := r.dispatch(ctx, item, rec.WorkerID); err != nil {
			// the failed worker is gone; remaining workers wait for the next event
			return
		}
	}
}

// dispatch publishes item to workerID. On failure the item returns to the
// backlog head and workerID is not marked ready again.
func (r *Router) dispatch(ctx context.Context, item WorkItem, workerID string) error {
	item.Attempts++

	headers := item.Headers.Clone()
	headers[HeaderWorkID] = item.ID

	rec := &dispatchRecord{item: item, workerID: workerID, dispatchedAt: r.now()}
	r.dispatched.Store(workerID, rec)

	if err := r.bus.Publish(ctx, workerID, item.Payload, headers); err != nil {
		r.dispatched.Compute(workerID, func(cur *dispatchRecord, loaded bool) (*dispatchRecord, xsync.ComputeOp) {
			if loaded && cur == rec {
				return nil, xsync.DeleteOp
			}

			return cur, xsync.CancelOp
		})
		r.requeue(item, requeuePublishFailed)
		r.metrics.RecordDispatch(dispatchFailure)
		r.logger.Warn("dispatch failed, item requeued at backlog head",
			"workID", item.ID, "workerID", workerID, "attempts", item.Attempts, "error", err)
		_ = r.hooks.OnError(ctx, fmt.Errorf("dispatch %s to %s: %w", item.ID, workerID, err))

		return err
	}

	r.metrics.RecordDispatch(dispatchSuccess)
	r.metrics.RecordQueueWait(r.now().Sub(item.EnqueuedAt).Seconds())
	r.logger.Debug("work item dispatched", "workID", item.ID, "workerID", workerID)
	_ = r.hooks.OnDispatch(ctx, item, workerID)

	return nil
}

func (r *Router) requeue(item WorkItem, reason string) {
	r.decide.Lock()
	r.backlog.PushFront(item)
	r.decide.Unlock()

	r.metrics.RecordRequeue(reason)
	r.metrics.SetBacklogLength(r.backlog.Len())
}

// Sweep requeues items dispatched longer than DispatchTimeout ago and drains
// the backlog toward ready workers. Returns the number of requeued items.
//
// The sweeper calls it every SweepInterval while running.
func (r *Router) Sweep(ctx context.Context) int {
	requeued := 0
	if r.cfg.DispatchTimeout > 0 {
		cutoff := r.now().Add(-r.cfg.DispatchTimeout)

		var expired []*dispatchRecord
		r.dispatched.Range(func(_ string, rec *dispatchRecord) bool {
			if rec.dispatchedAt.Before(cutoff) {
				expired = append(expired, rec)
			}

			return true
		})

		// newest first, so successive PushFront calls leave the oldest at the head
		slices.SortFunc(expired, func(a, b *dispatchRecord) int {
			return cmp.Compare(b.item.Seq, a.item.Seq)
		})
		for _, rec := range expired {
			removed := false
			r.dispatched.Compute(rec.workerID, func(cur *dispatchRecord, loaded bool) (*dispatchRecord, xsync.ComputeOp) {
				if loaded && cur == rec {
					removed = true
					return nil, xsync.DeleteOp
				}

				return cur, xsync.CancelOp
			})
			if !removed {
				continue
			}
			r.requeue(rec.item, requeueTimeout)
			requeued++
			r.logger.Warn("dispatch timed out, item requeued at backlog head",
				"workID", rec.item.ID, "workerID", rec.workerID, "timeout", r.cfg.DispatchTimeout)
		}
	}

	r.drain(ctx)

	return requeued
}

func (r *Router) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}
