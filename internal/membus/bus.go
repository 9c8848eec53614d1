// Package membus is an in-process types.Broker used by tests and local demos.
//
// Every topic is a buffered queue. Consume hands each delivery to the
// handler on its own goroutine, like the JetStream adapter does. Deliveries
// record their disposition so tests can assert ack-after-commit ordering.
package membus

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/arloliu/courier/types"
)

// DefaultTopicBuffer is the per-topic queue capacity.
const DefaultTopicBuffer = 4096

// Message is a published message as recorded by the bus.
type Message struct {
	Destination string
	Payload     []byte
	Headers     types.Headers
}

// Bus is an in-memory broker. Safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	topics    map[string]chan *Delivery
	published []Message
	failFn    func(destination string) error
}

var _ types.Broker = (*Bus)(nil)

// New creates an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string]chan *Delivery)}
}

func (b *Bus) topic(name string) chan *Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan *Delivery, DefaultTopicBuffer)
		b.topics[name] = ch
	}

	return ch
}

// FailPublish installs fn as a publish interceptor. A non-nil error from fn
// fails the publish with types.ErrPublish. Pass nil to clear it.
func (b *Bus) FailPublish(fn func(destination string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failFn = fn
}

// Publish implements types.Publisher.
func (b *Bus) Publish(ctx context.Context, destination string, payload []byte, headers types.Headers) error {
	b.mu.Lock()
	failFn := b.failFn
	b.mu.Unlock()

	if failFn != nil {
		if err := failFn(destination); err != nil {
			return fmt.Errorf("%w: %s: %w", types.ErrPublish, destination, err)
		}
	}

	msg := Message{Destination: destination, Payload: slices.Clone(payload), Headers: headers.Clone()}

	b.mu.Lock()
	b.published = append(b.published, msg)
	b.mu.Unlock()

	_, err := b.enqueue(ctx, msg)

	return err
}

// Inject enqueues a message on topic without recording it as published and
// returns its delivery.
func (b *Bus) Inject(topic string, payload []byte, headers types.Headers) *Delivery {
	d, _ := b.enqueue(context.Background(), Message{Destination: topic, Payload: payload, Headers: headers})

	return d
}

func (b *Bus) enqueue(ctx context.Context, msg Message) (*Delivery, error) {
	d := newDelivery(b, msg)
	select {
	case b.topic(msg.Destination) <- d:
		return d, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", types.ErrPublish, msg.Destination, ctx.Err())
	}
}

// Consume implements types.Consumer.
//
// Returns ctx.Err() after all in-flight handlers returned.
func (b *Bus) Consume(ctx context.Context, topic string, handler types.DeliveryHandler) error {
	ch := b.topic(topic)
	handlerCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-ch:
			wg.Add(1)
			go func() {
				defer wg.Done()
				handler.HandleDelivery(handlerCtx, d)
			}()
		}
	}
}

// Published returns the messages published to destination, oldest first.
func (b *Bus) Published(destination string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	for _, m := range b.published {
		if m.Destination == destination {
			out = append(out, m)
		}
	}

	return out
}

// Pending returns the number of queued, not yet consumed messages on topic.
func (b *Bus) Pending(topic string) int {
	return len(b.topic(topic))
}

// Next removes and returns the oldest queued delivery on topic without
// blocking. Tests use it to drive handlers directly.
func (b *Bus) Next(topic string) (*Delivery, bool) {
	select {
	case d := <-b.topic(topic):
		return d, true
	default:
		return nil, false
	}
}
