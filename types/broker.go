package types

import "context"

// Delivery is one message handed to a consumer by the broker adapter.
//
// Ack and Reject are terminal: exactly one of them must be called once per delivery.
type Delivery interface {
	// Data returns the message payload.
	Data() []byte

	// Headers returns the message headers. Never nil.
	Headers() Headers

	// Subject returns the subject (topic) the message was consumed from.
	Subject() string

	// Source identifies the sender's reply destination, if any.
	//
	// Adapters return the reply_to header when present and fall back to
	// the transport-level reply address.
	Source() string

	// Ack acknowledges successful processing.
	Ack() error

	// Reject negatively acknowledges the delivery. With requeue=true the
	// broker redelivers it; with requeue=false it is dropped by the broker.
	Reject(requeue bool) error
}

// DeliveryHandler processes deliveries. The handler owns the disposition:
// it must Ack or Reject the delivery before returning.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, d Delivery)
}

// DeliveryHandlerFunc is a function adapter for DeliveryHandler.
type DeliveryHandlerFunc func(ctx context.Context, d Delivery)

// HandleDelivery implements DeliveryHandler.
func (f DeliveryHandlerFunc) HandleDelivery(ctx context.Context, d Delivery) { f(ctx, d) }

// Publisher sends messages to a destination.
type Publisher interface {
	// Publish sends payload with headers to destination.
	//
	// Returns:
	//   - error: wraps ErrPublish when the destination did not accept the message
	Publish(ctx context.Context, destination string, payload []byte, headers Headers) error
}

// Consumer delivers messages from a topic.
type Consumer interface {
	// Consume blocks delivering messages from topic to handler, one task per
	// delivery, until ctx is cancelled or the bus fails.
	//
	// On cancellation the consumer stops accepting new deliveries and waits
	// for in-flight handlers before returning ctx.Err(). Bus failures are
	// returned wrapped in ErrBus; the caller may call Consume again after
	// reconnecting.
	Consume(ctx context.Context, topic string, handler DeliveryHandler) error
}

// Broker combines Publisher and Consumer.
type Broker interface {
	Publisher
	Consumer
}
