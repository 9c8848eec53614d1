package courier

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Split divides payload into parts contiguous chunks whose concatenation
// equals payload. Chunk sizes differ by at most one byte; when parts exceeds
// len(payload) the trailing chunks are empty.
//
// Returns nil if parts < 1.
func Split(payload []byte, parts int) [][]byte {
	if parts < 1 {
		return nil
	}

	out := make([][]byte, parts)
	base, extra := len(payload)/parts, len(payload)%parts
	off := 0
	for i := range parts {
		n := base
		if i < extra {
			n++
		}
		out[i] = payload[off : off+n : off+n]
		off += n
	}

	return out
}

// FragmenterOption configures a Fragmenter.
type FragmenterOption func(*Fragmenter)

// WithShuffle publishes fragments in a random order seeded by seed.
// A zero seed uses a random seed.
func WithShuffle(seed uint64) FragmenterOption {
	return func(f *Fragmenter) {
		f.shuffle = true
		if seed == 0 {
			seed = rand.Uint64()
		}
		f.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // ordering only
	}
}

// WithHeaders adds headers to every published fragment.
// The fragment header contract keys take precedence.
func WithHeaders(h Headers) FragmenterOption {
	return func(f *Fragmenter) {
		f.extra = h.Clone()
	}
}

// Fragmenter splits payloads into fragments and publishes them with the
// group_id, position and total headers a Resequencer expects.
type Fragmenter struct {
	pub     Publisher
	extra   Headers
	shuffle bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewFragmenter creates a Fragmenter publishing through pub.
func NewFragmenter(pub Publisher, opts ...FragmenterOption) (*Fragmenter, error) {
	if pub == nil {
		return nil, ErrBrokerRequired
	}

	f := &Fragmenter{pub: pub}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Publish splits payload into parts fragments and publishes them to subject
// under a fresh group id.
//
// Parameters:
//   - ctx: Context for the publish calls
//   - subject: Resequencer inbound subject
//   - payload: Payload to fragment
//   - parts: Number of fragments, at least 1
//
// Returns:
//   - string: The group id
//   - error: ErrInvalidTotal for parts < 1, or the first publish error
//
// A publish error leaves the group partially published; the resequencer
// evicts it once stale.
func (f *Fragmenter) Publish(ctx context.Context, subject string, payload []byte, parts int) (string, error) {
	if parts < 1 {
		return "", fmt.Errorf("%w: %d", ErrInvalidTotal, parts)
	}

	groupID := uuid.NewString()
	chunks := Split(payload, parts)

	order := make([]int, parts)
	for i := range order {
		order[i] = i
	}
	if f.shuffle {
		f.rngMu.Lock()
		f.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		f.rngMu.Unlock()
	}

	total := strconv.Itoa(parts)
	for _, idx := range order {
		headers := f.extra.Clone()
		headers[HeaderGroupID] = groupID
		headers[HeaderPosition] = strconv.Itoa(idx + 1)
		headers[HeaderTotal] = total

		if err := f.pub.Publish(ctx, subject, chunks[idx], headers); err != nil {
			return groupID, fmt.Errorf("publish fragment %d/%d of %s: %w", idx+1, parts, groupID, err)
		}
	}

	return groupID, nil
}
