package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/internal/membus"
	"github.com/arloliu/courier/types"
)

func TestNew_Validation(t *testing.T) {
	h := HandlerFunc(func(context.Context, []byte, types.Headers) error { return nil })

	_, err := New(nil, Config{ReadySubject: "ready"}, h)
	require.ErrorIs(t, err, types.ErrBrokerRequired)

	_, err = New(membus.New(), Config{}, h)
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = New(membus.New(), Config{ReadySubject: "ready"}, nil)
	require.Error(t, err)

	w, err := New(membus.New(), Config{ReadySubject: "ready"}, h)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(w.ID(), DefaultQueuePrefix))
}

func TestWorker_AnnouncesOnStartAndAfterEachItem(t *testing.T) {
	bus := membus.New()
	var handled atomic.Int32
	w, err := New(bus, Config{ReadySubject: "ready", Queue: "q.a"}, HandlerFunc(func(_ context.Context, payload []byte, _ types.Headers) error {
		handled.Add(1)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, w.Start(t.Context()))
	require.ErrorIs(t, w.Start(t.Context()), ErrAlreadyStarted)

	ready := bus.Published("ready")
	require.Len(t, ready, 1)
	require.Equal(t, "q.a", string(ready[0].Payload))
	require.Equal(t, "q.a", ready[0].Headers[types.HeaderReplyTo])

	d1 := bus.Inject("q.a", []byte("w1"), nil)
	d2 := bus.Inject("q.a", []byte("w2"), nil)
	for _, d := range []*membus.Delivery{d1, d2} {
		select {
		case <-d.Done():
		case <-time.After(time.Second):
			t.Fatal("item not settled")
		}
		require.Equal(t, membus.Acked, d.Disposition())
	}

	require.Eventually(t, func() bool { return len(bus.Published("ready")) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int64(2), w.Processed())

	require.NoError(t, w.Stop(t.Context()))
	require.ErrorIs(t, w.Stop(t.Context()), ErrNotStarted)
}

func TestWorker_HandlerErrorRequeues(t *testing.T) {
	bus := membus.New()
	var calls atomic.Int32
	w, err := New(bus, Config{ReadySubject: "ready", Queue: "q.b"}, HandlerFunc(func(context.Context, []byte, types.Headers) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))
	defer func() { _ = w.Stop(context.Background()) }()

	d := bus.Inject("q.b", []byte("w1"), nil)
	<-d.Done()
	require.Equal(t, membus.Requeued, d.Disposition())

	require.Eventually(t, func() bool { return w.Processed() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int64(1), w.Failed())
}

func TestWorker_StartFailsWhenReadinessPublishFails(t *testing.T) {
	bus := membus.New()
	bus.FailPublish(func(string) error { return errors.New("down") })

	w, err := New(bus, Config{ReadySubject: "ready"}, HandlerFunc(func(context.Context, []byte, types.Headers) error { return nil }))
	require.NoError(t, err)

	err = w.Start(t.Context())
	require.ErrorIs(t, err, types.ErrPublish)
	require.ErrorIs(t, w.Stop(t.Context()), ErrNotStarted)
}

func TestWorker_ReannouncesWhileIdle(t *testing.T) {
	bus := membus.New()
	w, err := New(bus, Config{ReadySubject: "ready", Queue: "q.c", ReannounceInterval: 10 * time.Millisecond},
		HandlerFunc(func(context.Context, []byte, types.Headers) error { return nil }))
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))

	require.Eventually(t, func() bool { return len(bus.Published("ready")) >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(t.Context()))
}

func TestWorker_NoReannounceWhileAnyItemInFlight(t *testing.T) {
	bus := membus.New()
	release := map[string]chan struct{}{
		"a": make(chan struct{}),
		"b": make(chan struct{}),
	}
	w, err := New(bus, Config{ReadySubject: "ready", Queue: "q.d", ReannounceInterval: 5 * time.Millisecond},
		HandlerFunc(func(_ context.Context, payload []byte, _ types.Headers) error {
			<-release[string(payload)]
			return nil
		}))
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))
	defer func() { _ = w.Stop(context.Background()) }()

	da := bus.Inject("q.d", []byte("a"), nil)
	db := bus.Inject("q.d", []byte("b"), nil)
	require.Eventually(t, func() bool { return w.InFlight() == 2 }, time.Second, time.Millisecond)

	announced := len(bus.Published("ready"))
	close(release["a"])
	<-da.Done()
	require.Eventually(t, func() bool { return w.Processed() == 1 && w.InFlight() == 1 }, time.Second, time.Millisecond)

	// only the completion announce of "a"; no idle re-announce while "b" runs
	time.Sleep(50 * time.Millisecond)
	require.Len(t, bus.Published("ready"), announced+1)

	close(release["b"])
	<-db.Done()
	require.Eventually(t, func() bool { return len(bus.Published("ready")) > announced+2 }, time.Second, 5*time.Millisecond)
}
