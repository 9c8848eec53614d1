package natsutil

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/courier/types"
)

// ToNATSHeader converts typed headers into textual NATS headers.
//
// Values are rendered with fmt's %v verb; []byte values are copied verbatim.
func ToNATSHeader(h types.Headers) nats.Header {
	if len(h) == 0 {
		return nil
	}

	out := make(nats.Header, len(h))
	for k, v := range h {
		switch x := v.(type) {
		case string:
			out.Set(k, x)
		case []byte:
			out.Set(k, string(x))
		default:
			out.Set(k, fmt.Sprintf("%v", x))
		}
	}

	return out
}

// FromNATSHeader converts NATS headers into typed headers.
//
// Only the first value of multi-valued keys is kept.
func FromNATSHeader(h nats.Header) types.Headers {
	out := make(types.Headers, len(h))
	for k, vals := range h {
		if len(vals) == 0 {
			continue
		}
		out[k] = vals[0]
	}

	return out
}
