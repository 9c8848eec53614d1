package readiness

import (
	"sync"

	"github.com/arloliu/courier/types"
)

// Backlog is a FIFO queue of work items waiting for a ready worker.
//
// Backlog is safe for concurrent use.
type Backlog struct {
	mu    sync.Mutex
	items []types.WorkItem
	head  int
}

// NewBacklog creates an empty backlog.
func NewBacklog() *Backlog {
	return &Backlog{}
}

// PushBack appends item at the tail.
func (b *Backlog) PushBack(item types.WorkItem) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, item)
}

// PushFront returns item to the head, ahead of every queued item.
func (b *Backlog) PushFront(item types.WorkItem) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head > 0 {
		b.head--
		b.items[b.head] = item

		return
	}
	b.items = append([]types.WorkItem{item}, b.items...)
}

// PopFront removes and returns the oldest item.
func (b *Backlog) PopFront() (types.WorkItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head >= len(b.items) {
		return types.WorkItem{}, false
	}
	item := b.items[b.head]
	b.items[b.head] = types.WorkItem{}
	b.head++
	b.compact()

	return item, true
}

// Peek returns the oldest item without removing it.
func (b *Backlog) Peek() (types.WorkItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.head >= len(b.items) {
		return types.WorkItem{}, false
	}

	return b.items[b.head], true
}

// Len returns the number of queued items.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.items) - b.head
}

// compact reclaims the consumed prefix once it dominates the slice.
// Caller must hold b.mu.
func (b *Backlog) compact() {
	if b.head == len(b.items) {
		b.items = b.items[:0]
		b.head = 0

		return
	}
	if b.head > 64 && b.head*2 > len(b.items) {
		n := copy(b.items, b.items[b.head:])
		clear(b.items[n:])
		b.items = b.items[:n]
		b.head = 0
	}
}
