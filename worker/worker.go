// Package worker implements the consumer side of readiness routing.
//
// A Worker owns a private queue subject. It announces readiness to the
// router's ready subject on start and again after each processed item,
// using its queue subject as both payload and reply_to header so the router
// knows where to send the next item.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nuid"

	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/types"
)

// DefaultQueuePrefix prefixes generated worker queue subjects.
const DefaultQueuePrefix = "courier.worker."

// Common errors for worker operations.
var (
	ErrAlreadyStarted = errors.New("worker already started")
	ErrNotStarted     = errors.New("worker not started")
)

// Handler processes one work item.
//
// Returning an error rejects the delivery with requeue; the item is
// redelivered to the same worker queue.
type Handler interface {
	Handle(ctx context.Context, payload []byte, headers types.Headers) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, payload []byte, headers types.Headers) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, payload []byte, headers types.Headers) error {
	return f(ctx, payload, headers)
}

// Config configures a Worker.
type Config struct {
	// ReadySubject is the router's readiness subject. Required.
	ReadySubject string

	// Queue is this worker's queue subject. Defaults to DefaultQueuePrefix + nuid.
	Queue string

	// ReannounceInterval re-sends the readiness signal while idle. Zero disables it.
	ReannounceInterval time.Duration

	Logger types.Logger
}

// Worker consumes its queue and signals readiness after each item.
type Worker struct {
	bus     types.Broker
	handler Handler
	cfg     Config
	logger  types.Logger

	inFlight  atomic.Int32
	processed atomic.Int64
	failed    atomic.Int64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	runErr  error
}

// New creates a worker.
//
// Parameters:
//   - bus: Broker used to consume the queue and publish readiness
//   - cfg: Worker configuration (ReadySubject required)
//   - handler: Item handler
//
// Returns:
//   - *Worker: New worker instance
//   - error: Configuration error
//
// Example:
//
//	w, err := worker.New(bus, worker.Config{ReadySubject: "courier.ready"},
//	    worker.HandlerFunc(func(ctx context.Context, payload []byte, _ courier.Headers) error {
//	        return process(payload)
//	    }))
func New(bus types.Broker, cfg Config, handler Handler) (*Worker, error) {
	if bus == nil {
		return nil, types.ErrBrokerRequired
	}
	if handler == nil {
		return nil, errors.New("worker handler is required")
	}
	if cfg.ReadySubject == "" {
		return nil, fmt.Errorf("%w: ready subject is required", types.ErrInvalidConfig)
	}
	if cfg.ReannounceInterval < 0 {
		return nil, fmt.Errorf("%w: reannounce interval must be >= 0", types.ErrInvalidConfig)
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueuePrefix + nuid.Next()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	return &Worker{
		bus:     bus,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger,
	}, nil
}

// ID returns the worker id, which is also its queue subject.
func (w *Worker) ID() string {
	return w.cfg.Queue
}

// Processed returns the number of successfully handled items.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

// InFlight returns the number of items currently being handled.
func (w *Worker) InFlight() int {
	return int(w.inFlight.Load())
}

// Failed returns the number of items whose handler returned an error.
func (w *Worker) Failed() int64 {
	return w.failed.Load()
}

// Start announces readiness and begins consuming the worker queue in the background.
//
// Returns:
//   - error: ErrAlreadyStarted, or the initial readiness publish error
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	if err := w.announce(ctx); err != nil {
		return fmt.Errorf("failed to publish initial readiness: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.started = true
	w.runErr = nil

	go w.run(runCtx, w.doneCh)

	if w.cfg.ReannounceInterval > 0 {
		go w.reannounceLoop(runCtx)
	}

	w.logger.Info("worker started", "queue", w.cfg.Queue, "ready_subject", w.cfg.ReadySubject)

	return nil
}

// Stop stops consuming and waits for the in-flight item to finish.
//
// Returns:
//   - error: ErrNotStarted, ctx.Err() if ctx expires first, or the consume error
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return ErrNotStarted
	}
	w.started = false
	cancel, doneCh := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()

	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return w.runErr
}

func (w *Worker) run(ctx context.Context, doneCh chan struct{}) {
	defer close(doneCh)

	err := w.bus.Consume(ctx, w.cfg.Queue, types.DeliveryHandlerFunc(w.handle))
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("worker consume stopped", "queue", w.cfg.Queue, "error", err)
		w.mu.Lock()
		w.runErr = err
		w.mu.Unlock()
	}
}

func (w *Worker) handle(ctx context.Context, d types.Delivery) {
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	if err := w.handler.Handle(ctx, d.Data(), d.Headers()); err != nil {
		w.failed.Add(1)
		w.logger.Warn("work item failed, requeueing", "queue", w.cfg.Queue, "error", err)
		if rejErr := d.Reject(true); rejErr != nil {
			w.logger.Error("failed to reject work item", "queue", w.cfg.Queue, "error", rejErr)
		}

		return
	}

	if err := d.Ack(); err != nil {
		w.logger.Error("failed to ack work item", "queue", w.cfg.Queue, "error", err)
	}
	w.processed.Add(1)

	if err := w.announce(ctx); err != nil {
		w.logger.Error("failed to announce readiness", "queue", w.cfg.Queue, "error", err)
	}
}

// reannounceLoop repeats the readiness signal while no item is in flight.
func (w *Worker) reannounceLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReannounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.inFlight.Load() > 0 {
				continue
			}
			if err := w.announce(ctx); err != nil {
				w.logger.Warn("failed to reannounce readiness", "queue", w.cfg.Queue, "error", err)
			}
		}
	}
}

func (w *Worker) announce(ctx context.Context) error {
	return w.bus.Publish(ctx, w.cfg.ReadySubject, []byte(w.cfg.Queue), types.Headers{
		types.HeaderReplyTo: w.cfg.Queue,
	})
}
