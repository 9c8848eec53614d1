package courier

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/courier/internal/membus"
)

var errSinkDown = errors.New("sink down")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type emitted struct {
	groupID string
	payload []byte
}

// recordingSink records emitted payloads and fails while failing is set.
type recordingSink struct {
	mu      sync.Mutex
	emits   []emitted
	failing bool
	calls   int
	onEmit  func()
}

func (s *recordingSink) Emit(_ context.Context, groupID string, payload []byte) error {
	s.mu.Lock()
	s.calls++
	failing, onEmit := s.failing, s.onEmit
	s.mu.Unlock()

	if onEmit != nil {
		onEmit()
	}
	if failing {
		return errSinkDown
	}

	s.mu.Lock()
	s.emits = append(s.emits, emitted{groupID: groupID, payload: payload})
	s.mu.Unlock()

	return nil
}

func (s *recordingSink) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failing = v
}

func (s *recordingSink) Emits() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]emitted, len(s.emits))
	copy(out, s.emits)

	return out
}

func (s *recordingSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func fragmentHeaders(groupID string, position, total int) Headers {
	return Headers{
		HeaderGroupID:  groupID,
		HeaderPosition: strconv.Itoa(position),
		HeaderTotal:    strconv.Itoa(total),
	}
}

func waitSettled(t *testing.T, d *membus.Delivery) membus.Disposition {
	t.Helper()

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("delivery on %s not settled", d.Subject())
	}

	return d.Disposition()
}

// failingBroker consumes nothing and fails Consume with err once ctx is live.
type failingBroker struct {
	*membus.Bus

	mu    sync.Mutex
	fails int
	err   error
}

func (b *failingBroker) Consume(ctx context.Context, topic string, h DeliveryHandler) error {
	b.mu.Lock()
	if b.fails > 0 {
		b.fails--
		err := b.err
		b.mu.Unlock()

		return err
	}
	b.mu.Unlock()

	return b.Bus.Consume(ctx, topic, h)
}
