package broker

import (
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/courier/internal/natsutil"
	"github.com/arloliu/courier/types"
)

// delivery adapts a jetstream.Msg to types.Delivery.
type delivery struct {
	msg     jetstream.Msg
	headers types.Headers
}

var _ types.Delivery = (*delivery)(nil)

func newDelivery(msg jetstream.Msg) *delivery {
	return &delivery{msg: msg, headers: natsutil.FromNATSHeader(msg.Headers())}
}

func (d *delivery) Data() []byte { return d.msg.Data() }

func (d *delivery) Headers() types.Headers { return d.headers }

func (d *delivery) Subject() string { return d.msg.Subject() }

// Source returns the reply_to header.
//
// JetStream reply subjects are acknowledgement addresses, so there is no
// transport-level fallback.
func (d *delivery) Source() string {
	src, err := d.headers.GetString(types.HeaderReplyTo)
	if err != nil {
		return ""
	}

	return src
}

func (d *delivery) Ack() error {
	return natsutil.WrapBus(d.msg.Ack())
}

// Reject maps requeue=true to Nak (redeliver) and requeue=false to Term.
func (d *delivery) Reject(requeue bool) error {
	if requeue {
		return natsutil.WrapBus(d.msg.Nak())
	}

	return natsutil.WrapBus(d.msg.Term())
}
