package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Header keys of the fragment and readiness contracts.
const (
	// HeaderGroupID carries the fragment group identifier (string).
	HeaderGroupID = "group_id"

	// HeaderPosition carries the 1-based fragment position (integer).
	HeaderPosition = "position"

	// HeaderTotal carries the group fragment count (integer).
	HeaderTotal = "total"

	// HeaderReplyTo identifies the worker destination on readiness signals.
	HeaderReplyTo = "reply_to"

	// HeaderRejectReason is attached to dead-lettered messages.
	HeaderRejectReason = "reject_reason"

	// HeaderRejectDetail is attached to dead-lettered messages.
	HeaderRejectDetail = "reject_detail"

	// HeaderOriginalSubject is attached to dead-lettered messages.
	HeaderOriginalSubject = "original_subject"

	// HeaderWorkID carries the router work item identifier.
	HeaderWorkID = "work_id"
)

// Headers is a message header map.
//
// Values may be strings or integer types. Broker adapters whose wire headers
// are textual (NATS) deliver strings; numeric accessors parse them.
type Headers map[string]any

// Clone returns a shallow copy of h. A nil map clones to an empty map.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h)+2)
	for k, v := range h {
		out[k] = v
	}

	return out
}

// GetString returns the header as a string.
//
// Returns:
//   - string: header value
//   - error: ErrMalformedHeaders when missing or not a string
func (h Headers) GetString(key string) (string, error) {
	v, ok := h[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrMalformedHeaders, key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("%w: %q is %T, want string", ErrMalformedHeaders, key, v)
	}
}

// GetInt returns the header as an int.
//
// Accepts Go integer types and base-10 integer strings.
//
// Returns:
//   - int: header value
//   - error: ErrMalformedHeaders when missing, mistyped or out of int range
func (h Headers) GetInt(key string) (int, error) {
	v, ok := h[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrMalformedHeaders, key)
	}

	var n int64
	switch x := v.(type) {
	case int:
		return x, nil
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %q overflows int", ErrMalformedHeaders, key)
		}
		n = int64(x)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer: %q", ErrMalformedHeaders, key, x)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: %q is %T, want integer", ErrMalformedHeaders, key, v)
	}

	if n > math.MaxInt || n < math.MinInt {
		return 0, fmt.Errorf("%w: %q overflows int", ErrMalformedHeaders, key)
	}

	return int(n), nil
}

// FragmentFromHeaders builds a Fragment from a payload and its headers.
//
// group_id must be a non-empty string; position and total must be integers.
// Range checks on position and total are left to the fragment store.
//
// Returns:
//   - Fragment: parsed fragment
//   - error: ErrMalformedHeaders (wrapped) on any contract violation
func FragmentFromHeaders(payload []byte, h Headers) (Fragment, error) {
	groupID, err := h.GetString(HeaderGroupID)
	if err != nil {
		return Fragment{}, err
	}
	if groupID == "" {
		return Fragment{}, fmt.Errorf("%w: empty %q", ErrMalformedHeaders, HeaderGroupID)
	}

	position, err := h.GetInt(HeaderPosition)
	if err != nil {
		return Fragment{}, err
	}

	total, err := h.GetInt(HeaderTotal)
	if err != nil {
		return Fragment{}, err
	}

	return Fragment{GroupID: groupID, Position: position, Total: total, Payload: payload}, nil
}

// Headers returns the header set describing f.
func (f Fragment) Headers() Headers {
	return Headers{
		HeaderGroupID:  f.GroupID,
		HeaderPosition: strconv.Itoa(f.Position),
		HeaderTotal:    strconv.Itoa(f.Total),
	}
}
