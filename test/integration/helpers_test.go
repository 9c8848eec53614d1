package integration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier"
	"github.com/arloliu/courier/broker"
	couriertest "github.com/arloliu/courier/testing"
)

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// newBus starts an embedded JetStream server and returns a broker adapter
// with the courier stream in place.
func newBus(t *testing.T, cfg *courier.Config) (*broker.JetStream, *nats.Conn) {
	t.Helper()

	_, nc := couriertest.StartEmbeddedNATS(t)
	bus, err := broker.NewFromConn(nc, cfg.BrokerConfig(couriertest.NewTestLogger(t), nil))
	require.NoError(t, err)
	require.NoError(t, bus.EnsureStream(t.Context(), cfg.Consumer.StreamSubjects...))

	return bus, nc
}

type received struct {
	payload []byte
	headers courier.Headers
}

// collector acks and records every message consumed from one subject.
type collector struct {
	mu   sync.Mutex
	msgs []received
}

func collect(t *testing.T, bus courier.Consumer, subject string) *collector {
	t.Helper()

	c := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Consume(ctx, subject, courier.DeliveryHandlerFunc(func(_ context.Context, d courier.Delivery) {
			c.mu.Lock()
			c.msgs = append(c.msgs, received{payload: append([]byte(nil), d.Data()...), headers: d.Headers().Clone()})
			c.mu.Unlock()
			_ = d.Ack()
		}))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return c
}

func (c *collector) Messages() []received {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]received, len(c.msgs))
	copy(out, c.msgs)

	return out
}

func (c *collector) waitFor(t *testing.T, n int) []received {
	t.Helper()

	require.Eventually(t, func() bool { return len(c.Messages()) >= n }, 10*time.Second, 20*time.Millisecond)

	return c.Messages()
}
