package membus

import (
	"context"
	"errors"
	"sync"

	"github.com/arloliu/courier/types"
)

// ErrAlreadySettled is returned when Ack or Reject is called twice.
var ErrAlreadySettled = errors.New("delivery already settled")

// Disposition is the final state of a delivery.
type Disposition int

const (
	// Pending means neither Ack nor Reject was called yet.
	Pending Disposition = iota
	// Acked means Ack was called.
	Acked
	// Requeued means Reject(true) was called.
	Requeued
	// Dropped means Reject(false) was called.
	Dropped
)

// Delivery is a membus message handed to a consumer.
type Delivery struct {
	bus *Bus
	msg Message

	mu          sync.Mutex
	disposition Disposition
	done        chan struct{}
}

var _ types.Delivery = (*Delivery)(nil)

func newDelivery(bus *Bus, msg Message) *Delivery {
	if msg.Headers == nil {
		msg.Headers = types.Headers{}
	}

	return &Delivery{bus: bus, msg: msg, done: make(chan struct{})}
}

func (d *Delivery) Data() []byte { return d.msg.Payload }

func (d *Delivery) Headers() types.Headers { return d.msg.Headers }

func (d *Delivery) Subject() string { return d.msg.Destination }

// Source returns the reply_to header, if any.
func (d *Delivery) Source() string {
	src, _ := d.msg.Headers.GetString(types.HeaderReplyTo)
	return src
}

func (d *Delivery) Ack() error {
	return d.settle(Acked)
}

// Reject settles the delivery; with requeue=true a fresh copy is enqueued.
func (d *Delivery) Reject(requeue bool) error {
	if !requeue {
		return d.settle(Dropped)
	}
	if err := d.settle(Requeued); err != nil {
		return err
	}
	_, err := d.bus.enqueue(context.Background(), d.msg)

	return err
}

func (d *Delivery) settle(to Disposition) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposition != Pending {
		return ErrAlreadySettled
	}
	d.disposition = to
	close(d.done)

	return nil
}

// Disposition returns the current disposition.
func (d *Delivery) Disposition() Disposition {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.disposition
}

// Done is closed once the delivery is settled.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}
