package courier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/internal/membus"
	couriertest "github.com/arloliu/courier/testing"
	"github.com/arloliu/courier/worker"
)

func newTestRouter(t *testing.T, bus Broker, mutate func(*Config), opts ...Option) *Router {
	t.Helper()

	cfg := TestConfig()
	cfg.Router.SweepInterval = -1
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{WithLogger(couriertest.NewTestLogger(t))}, opts...)
	r, err := NewRouter(&cfg, bus, opts...)
	require.NoError(t, err)

	return r
}

func submit(t *testing.T, r *Router, payload string) WorkItem {
	t.Helper()

	return r.Submit(t.Context(), WorkItem{Payload: []byte(payload), Headers: Headers{}})
}

func payloads(msgs []membus.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Payload))
	}

	return out
}

func TestNewRouter_Validation(t *testing.T) {
	cfg := TestConfig()

	_, err := NewRouter(nil, membus.New())
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRouter(&cfg, nil)
	require.ErrorIs(t, err, ErrBrokerRequired)

	bad := TestConfig()
	bad.Router.DispatchTimeout = time.Second
	bad.Router.SweepInterval = -1
	_, err = NewRouter(&bad, membus.New())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRouter_DispatchesToMostRecentlyReady(t *testing.T) {
	bus := membus.New()
	r := newTestRouter(t, bus, nil)

	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.NoError(t, r.Ready(t.Context(), "worker.b"))
	require.Equal(t, []string{"worker.b", "worker.a"}, r.Stats().ReadyWorkers)

	submit(t, r, "w1")
	submit(t, r, "w2")

	require.Equal(t, []string{"w1"}, payloads(bus.Published("worker.b")))
	require.Equal(t, []string{"w2"}, payloads(bus.Published("worker.a")))
	require.Empty(t, r.Stats().ReadyWorkers)
	require.Equal(t, 2, r.Stats().InFlight)
}

func TestRouter_RepeatedReadyMovesWorkerToTop(t *testing.T) {
	bus := membus.New()
	r := newTestRouter(t, bus, nil)

	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.NoError(t, r.Ready(t.Context(), "worker.b"))
	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.Equal(t, []string{"worker.a", "worker.b"}, r.Stats().ReadyWorkers)

	submit(t, r, "w1")
	require.Equal(t, []string{"w1"}, payloads(bus.Published("worker.a")))
}

func TestRouter_BacklogIsFIFO(t *testing.T) {
	bus := membus.New()
	r := newTestRouter(t, bus, nil)

	for i := 1; i <= 3; i++ {
		submit(t, r, fmt.Sprintf("w%d", i))
	}
	require.Equal(t, 3, r.Stats().BacklogLength)

	require.NoError(t, r.Ready(t.Context(), "worker.x"))
	require.NoError(t, r.Ready(t.Context(), "worker.y"))
	require.NoError(t, r.Ready(t.Context(), "worker.x"))

	require.Equal(t, []string{"w1", "w3"}, payloads(bus.Published("worker.x")))
	require.Equal(t, []string{"w2"}, payloads(bus.Published("worker.y")))
	require.Zero(t, r.Stats().BacklogLength)
	require.Empty(t, r.Stats().ReadyWorkers)
}

func TestRouter_PublishFailureKeepsHeadAndLeavesOtherWorkers(t *testing.T) {
	bus := membus.New()
	bus.FailPublish(func(dest string) error {
		if dest == "worker.b" {
			return errors.New("no responders")
		}

		return nil
	})
	var hookErrs atomic.Int32
	r := newTestRouter(t, bus, nil, WithHooks(&Hooks{
		OnError: func(_ context.Context, err error) error {
			require.ErrorIs(t, err, ErrPublish)
			hookErrs.Add(1)

			return nil
		},
	}))

	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.NoError(t, r.Ready(t.Context(), "worker.b"))

	item := submit(t, r, "w1")

	stats := r.Stats()
	require.Equal(t, []string{"worker.a"}, stats.ReadyWorkers, "failed worker is not re-marked ready")
	require.Equal(t, 1, stats.BacklogLength)
	require.Zero(t, stats.InFlight)
	require.Empty(t, bus.Published("worker.a"), "other ready workers are untouched")
	require.Equal(t, int32(1), hookErrs.Load())

	// next arrival drains the requeued head first
	submit(t, r, "w2")
	published := bus.Published("worker.a")
	require.Equal(t, []string{"w1"}, payloads(published))
	require.Equal(t, item.ID, published[0].Headers[HeaderWorkID])
	require.Equal(t, 1, r.Stats().BacklogLength)
}

func TestRouter_ReadyDispatchFailureRequeuesAtFront(t *testing.T) {
	bus := membus.New()
	bus.FailPublish(func(dest string) error {
		if dest == "worker.b" {
			return errors.New("gone")
		}

		return nil
	})
	r := newTestRouter(t, bus, nil)

	submit(t, r, "w1")
	submit(t, r, "w2")

	require.NoError(t, r.Ready(t.Context(), "worker.b"))
	require.Equal(t, 2, r.Stats().BacklogLength)
	require.Empty(t, r.Stats().ReadyWorkers)

	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.Equal(t, []string{"w1"}, payloads(bus.Published("worker.a")))
}

func TestRouter_SweepDrainsAfterFailure(t *testing.T) {
	bus := membus.New()
	var failB atomic.Bool
	failB.Store(true)
	bus.FailPublish(func(dest string) error {
		if dest == "worker.b" && failB.Load() {
			return errors.New("gone")
		}

		return nil
	})
	r := newTestRouter(t, bus, nil)

	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.NoError(t, r.Ready(t.Context(), "worker.b"))
	submit(t, r, "w1")
	require.Empty(t, bus.Published("worker.a"))

	require.Zero(t, r.Sweep(t.Context()))
	require.Equal(t, []string{"w1"}, payloads(bus.Published("worker.a")))
	require.Zero(t, r.Stats().BacklogLength)
}

func TestRouter_ReadyAcknowledgesOutstandingItem(t *testing.T) {
	bus := membus.New()
	r := newTestRouter(t, bus, nil)

	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	submit(t, r, "w1")
	require.Equal(t, 1, r.Stats().InFlight)

	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.Zero(t, r.Stats().InFlight)
	require.Equal(t, []string{"worker.a"}, r.Stats().ReadyWorkers)
}

func TestRouter_DispatchTimeoutRequeues(t *testing.T) {
	bus := membus.New()
	clock := newFakeClock()
	r := newTestRouter(t, bus, func(cfg *Config) {
		cfg.Router.DispatchTimeout = time.Second
		cfg.Router.SweepInterval = time.Hour
	}, WithClock(clock.Now))

	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.NoError(t, r.Ready(t.Context(), "worker.b"))
	first := submit(t, r, "w1")
	second := submit(t, r, "w2")
	submit(t, r, "w3")
	require.Equal(t, 2, r.Stats().InFlight)
	require.Equal(t, 1, r.Stats().BacklogLength)

	clock.Advance(500 * time.Millisecond)
	require.Zero(t, r.Sweep(t.Context()))

	clock.Advance(time.Second)
	require.Equal(t, 2, r.Sweep(t.Context()))
	stats := r.Stats()
	require.Zero(t, stats.InFlight)
	require.Equal(t, 3, stats.BacklogLength)

	// requeued items keep arrival order ahead of newer work
	require.NoError(t, r.Ready(t.Context(), "worker.c"))
	require.NoError(t, r.Ready(t.Context(), "worker.c"))
	published := bus.Published("worker.c")
	require.Equal(t, []string{"w1", "w2"}, payloads(published))
	require.Equal(t, first.ID, published[0].Headers[HeaderWorkID])
	require.Equal(t, second.ID, published[1].Headers[HeaderWorkID])

	// late ready from a timed-out worker just marks it ready
	require.NoError(t, r.Ready(t.Context(), "worker.a"))
	require.Equal(t, []string{"w3"}, payloads(bus.Published("worker.a"))[1:])
}

func TestRouter_HandleReady(t *testing.T) {
	t.Run("reply_to header wins over payload", func(t *testing.T) {
		bus := membus.New()
		r := newTestRouter(t, bus, nil)

		d := bus.Inject("courier.ready", []byte("ignored"), Headers{HeaderReplyTo: "worker.a"})
		r.HandleReady(t.Context(), d)

		require.Equal(t, membus.Acked, d.Disposition())
		require.Equal(t, []string{"worker.a"}, r.Stats().ReadyWorkers)
	})

	t.Run("payload fallback is trimmed", func(t *testing.T) {
		bus := membus.New()
		r := newTestRouter(t, bus, nil)

		d := bus.Inject("courier.ready", []byte(" worker.b\n"), nil)
		r.HandleReady(t.Context(), d)

		require.Equal(t, membus.Acked, d.Disposition())
		require.Equal(t, []string{"worker.b"}, r.Stats().ReadyWorkers)
	})

	t.Run("missing worker id is dropped", func(t *testing.T) {
		bus := membus.New()
		var gotErr error
		r := newTestRouter(t, bus, nil, WithHooks(&Hooks{
			OnError: func(_ context.Context, err error) error {
				gotErr = err
				return nil
			},
		}))

		d := bus.Inject("courier.ready", []byte("  "), nil)
		r.HandleReady(t.Context(), d)

		require.Equal(t, membus.Dropped, d.Disposition())
		require.ErrorIs(t, gotErr, ErrInvalidWorkerID)
		require.Empty(t, r.Stats().ReadyWorkers)
	})
}

func TestRouter_HandleWorkForwardsPayloadAndHeaders(t *testing.T) {
	bus := membus.New()
	var dispatched []string
	r := newTestRouter(t, bus, nil, WithHooks(&Hooks{
		OnDispatch: func(_ context.Context, item WorkItem, workerID string) error {
			dispatched = append(dispatched, item.ID+"@"+workerID)
			return nil
		},
	}))
	require.NoError(t, r.Ready(t.Context(), "worker.a"))

	d := bus.Inject("courier.work", []byte("job"), Headers{HeaderWorkID: "job-1", "tenant": "acme"})
	r.HandleWork(t.Context(), d)
	require.Equal(t, membus.Acked, d.Disposition())

	queued := bus.Inject("courier.work", []byte("job2"), nil)
	r.HandleWork(t.Context(), queued)
	require.Equal(t, membus.Acked, queued.Disposition())
	require.Equal(t, 1, r.Stats().BacklogLength)

	published := bus.Published("worker.a")
	require.Len(t, published, 1)
	require.Equal(t, []byte("job"), published[0].Payload)
	require.Equal(t, "job-1", published[0].Headers[HeaderWorkID])
	require.Equal(t, "acme", published[0].Headers["tenant"])
	require.Equal(t, []string{"job-1@worker.a"}, dispatched)
}

func TestRouter_Lifecycle(t *testing.T) {
	bus := membus.New()
	r := newTestRouter(t, bus, func(cfg *Config) { cfg.Router.SweepInterval = 20 * time.Millisecond })

	require.ErrorIs(t, r.Stop(t.Context()), ErrNotStarted)
	require.NoError(t, r.Start(t.Context()))
	require.ErrorIs(t, r.Start(t.Context()), ErrAlreadyStarted)
	require.True(t, r.Stats().Running)

	require.NoError(t, bus.Publish(t.Context(), "courier.ready", []byte("worker.a"), Headers{HeaderReplyTo: "worker.a"}))
	require.Eventually(t, func() bool { return len(r.Stats().ReadyWorkers) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(t.Context(), "courier.work", []byte("w1"), nil))
	require.Eventually(t, func() bool { return len(bus.Published("worker.a")) == 1 }, 2*time.Second, 5*time.Millisecond)

	done := r.Done()
	require.NoError(t, r.Stop(t.Context()))
	<-done
	require.NoError(t, r.Err())
	require.False(t, r.Stats().Running)
}

func TestRouter_BusErrorStopsBothConsumers(t *testing.T) {
	bus := &failingBroker{Bus: membus.New(), fails: 1, err: fmt.Errorf("%w: connection closed", ErrBus)}
	r := newTestRouter(t, bus, nil)

	require.NoError(t, r.Start(t.Context()))
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop on bus error")
	}
	require.ErrorIs(t, r.Err(), ErrBus)

	require.NoError(t, r.Start(t.Context()))
	require.NoError(t, r.Stop(t.Context()))
	require.NoError(t, r.Err())
}

func TestRouter_WithWorkers(t *testing.T) {
	const items = 40

	bus := membus.New()
	r := newTestRouter(t, bus, func(cfg *Config) { cfg.Router.SweepInterval = 20 * time.Millisecond })
	require.NoError(t, r.Start(t.Context()))
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	var mu sync.Mutex
	seen := make(map[string]int)
	perWorker := make(map[string]int)
	handler := func(id string) worker.Handler {
		return worker.HandlerFunc(func(_ context.Context, payload []byte, _ Headers) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			seen[string(payload)]++
			perWorker[id]++
			mu.Unlock()

			return nil
		})
	}

	for _, id := range []string{"worker.a", "worker.b", "worker.c"} {
		w, err := worker.New(bus, worker.Config{ReadySubject: "courier.ready", Queue: id}, handler(id))
		require.NoError(t, err)
		require.NoError(t, w.Start(t.Context()))
		t.Cleanup(func() { _ = w.Stop(context.Background()) })
	}

	for i := range items {
		require.NoError(t, bus.Publish(t.Context(), "courier.work", fmt.Appendf(nil, "item-%d", i), nil))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(seen) == items
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for item, n := range seen {
		require.Equal(t, 1, n, "%s processed more than once", item)
	}
	require.Len(t, perWorker, 3, "every worker received work")
}
