package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/courier/internal/kvutil"
	"github.com/arloliu/courier/internal/natsutil"
	"github.com/arloliu/courier/types"
)

// JetStream implements types.Broker on top of NATS JetStream.
type JetStream struct {
	js      jetstream.JetStream
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector
	backoff *backoffPolicy

	inFlight atomic.Int64
}

var _ types.Broker = (*JetStream)(nil)

// New creates a JetStream adapter using a pre-initialized JetStream context.
//
// Parameters:
//   - js: JetStream context (must be non-nil)
//   - cfg: Adapter configuration; zero fields take defaults
//
// Returns:
//   - *JetStream: Adapter ready for Consume/Publish
//   - error: Configuration error
//
// Example:
//
//	js, _ := jetstream.New(nc)
//	b, err := broker.New(js, broker.Config{StreamName: "COURIER", Logger: logger})
//	if err != nil {
//	    return err
//	}
//	_ = b.EnsureStream(ctx, "courier.>")
func New(js jetstream.JetStream, cfg Config) (*JetStream, error) {
	if js == nil {
		return nil, errors.New("JetStream context is required")
	}
	if cfg.MaxInFlight < 0 {
		return nil, fmt.Errorf("%w: MaxInFlight must be >= 0", types.ErrInvalidConfig)
	}
	cfg.applyDefaults()

	return &JetStream{
		js:      js,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		backoff: newBackoffPolicy(cfg.RetryBackoff, cfg.RetryMultiplier, cfg.RetryBackoffCap, cfg.RetrySeed),
	}, nil
}

// NewFromConn creates a JetStream adapter from a NATS connection.
func NewFromConn(conn *nats.Conn, cfg Config) (*JetStream, error) {
	if conn == nil {
		return nil, errors.New("NATS connection is required")
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return New(js, cfg)
}

// EnsureStream creates or updates the configured stream so it captures subjects.
func (b *JetStream) EnsureStream(ctx context.Context, subjects ...string) error {
	if len(subjects) == 0 {
		return errors.New("at least one subject is required")
	}

	_, err := kvutil.EnsureStreamWithRetry(ctx, b.js, jetstream.StreamConfig{
		Name:     b.cfg.StreamName,
		Subjects: subjects,
		Storage:  b.cfg.Storage,
	}, b.cfg.MaxRetries)

	return natsutil.WrapBus(err)
}

// Publish sends payload to destination with headers.
//
// Failed attempts are retried up to MaxRetries times with jittered backoff.
// The final failure is wrapped in types.ErrPublish.
func (b *JetStream) Publish(ctx context.Context, destination string, payload []byte, headers types.Headers) error {
	msg := &nats.Msg{
		Subject: destination,
		Data:    payload,
		Header:  natsutil.ToNATSHeader(headers),
	}

	var (
		lastErr error
		delay   time.Duration
	)
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if _, lastErr = b.js.PublishMsg(ctx, msg); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == b.cfg.MaxRetries {
			break
		}

		emitPublishRetry(b.metrics, destination)
		delay = b.backoff.next(delay)
		emitRetryBackoff(b.metrics, "publish", delay.Seconds())
		b.logger.Debug("publish failed, retrying", "destination", destination, "attempt", attempt+1, "backoff", delay, "error", lastErr)
		if err := sleep(ctx, delay); err != nil {
			break
		}
	}

	return fmt.Errorf("%w: %s: %w", types.ErrPublish, destination, lastErr)
}

// Consume delivers messages published to subject until ctx is cancelled or the bus fails.
//
// Behavior:
//   - Creates (or updates) the durable pull consumer <ConsumerPrefix>-<subject>
//   - Runs each delivery on its own goroutine, at most MaxInFlight at a time
//   - Recreates the message iterator after heartbeat loss or transient errors
//   - On cancellation stops pulling and waits for in-flight handlers
//
// Handlers run on a context detached from ctx's cancellation so that a
// delivery accepted before Stop still reaches its Ack.
//
// Returns:
//   - error: ctx.Err() after cancellation, or an error wrapping types.ErrBus
func (b *JetStream) Consume(ctx context.Context, subject string, handler types.DeliveryHandler) error {
	if subject == "" {
		return errors.New("subject is required")
	}
	if handler == nil {
		return errors.New("delivery handler is required")
	}

	cons, err := b.ensureConsumer(ctx, subject)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(b.cfg.MaxInFlight)
	handlerCtx := context.WithoutCancel(ctx)

	b.logger.Debug("consuming", "subject", subject, "stream", b.cfg.StreamName)

	err = b.pull(ctx, cons, subject, func(msg jetstream.Msg) {
		g.Go(func() error {
			b.metrics.SetInFlight(int(b.inFlight.Add(1)))
			defer func() { b.metrics.SetInFlight(int(b.inFlight.Add(-1))) }()

			handler.HandleDelivery(handlerCtx, newDelivery(msg))

			return nil
		})
	})

	_ = g.Wait()
	b.logger.Debug("consume stopped", "subject", subject, "reason", err)

	return err
}

// ensureConsumer creates the durable consumer for subject with retries.
func (b *JetStream) ensureConsumer(ctx context.Context, subject string) (jetstream.Consumer, error) {
	cfg := b.cfg.consumerConfig(subject)

	var (
		lastErr error
		delay   time.Duration
	)
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cons, err := b.js.CreateOrUpdateConsumer(ctx, b.cfg.StreamName, cfg)
		if err == nil {
			return cons, nil
		}
		lastErr = err
		if attempt == b.cfg.MaxRetries {
			break
		}
		delay = b.backoff.next(delay)
		emitRetryBackoff(b.metrics, "consumer", delay.Seconds())
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	err := fmt.Errorf("failed to create consumer %s after %d attempts: %w", cfg.Durable, b.cfg.MaxRetries+1, lastErr)
	if natsutil.IsConnectivityError(lastErr) {
		return nil, fmt.Errorf("%w: %w", types.ErrBus, err)
	}

	return nil, err
}

// pull runs the iterator loop, passing every message to dispatch.
func (b *JetStream) pull(ctx context.Context, cons jetstream.Consumer, subject string, dispatch func(jetstream.Msg)) error {
	var (
		failures int
		delay    time.Duration
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason, err := b.drainIterator(ctx, cons, dispatch, &failures)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		b.metrics.IncrementIteratorRestart(reason)
		b.logger.Warn("message iterator failed, recreating", "subject", subject, "reason", reason, "failures", failures, "error", err)

		if failures >= b.cfg.MaxIteratorFailures || b.connClosed(err) {
			return fmt.Errorf("%w: consume %s: %w", types.ErrBus, subject, err)
		}

		delay = b.backoff.next(delay)
		emitRetryBackoff(b.metrics, "iterator", delay.Seconds())
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// drainIterator opens one iterator and reads it until it fails or ctx is done.
// A successfully received message resets *failures.
func (b *JetStream) drainIterator(
	ctx context.Context,
	cons jetstream.Consumer,
	dispatch func(jetstream.Msg),
	failures *int,
) (string, error) {
	expiry := b.cfg.FetchTimeout
	iter, err := cons.Messages(
		jetstream.PullMaxMessages(b.cfg.BatchSize),
		jetstream.PullExpiry(expiry),
		jetstream.PullHeartbeat(expiry/2),
	)
	if err != nil {
		return restartCreate, err
	}

	stopOnCancel := context.AfterFunc(ctx, iter.Stop)
	defer func() {
		stopOnCancel()
		iter.Stop()
	}()

	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrNoHeartbeat) {
				return restartHeartbeat, err
			}

			return restartError, err
		}
		*failures = 0
		dispatch(msg)
	}
}

func (b *JetStream) connClosed(err error) bool {
	if errors.Is(err, nats.ErrConnectionClosed) {
		return true
	}
	conn := b.js.Conn()

	return conn != nil && conn.IsClosed()
}

// sanitizeConsumerName replaces characters NATS rejects in consumer names with '_'.
//
// Rejected: whitespace, '.', '*', '>', path separators and non-printables.
func sanitizeConsumerName(name string) string {
	var result strings.Builder
	result.Grow(len(name))

	for _, r := range name {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' ||
			r == '.' || r == '*' || r == '>' ||
			r == '/' || r == '\\' ||
			r < 32 || r == 127 {
			result.WriteRune('_')
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}
