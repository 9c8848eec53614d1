// Package readiness tracks ready workers and queued work for the router.
//
// Registry is a last-ready-first stack of workers; Backlog is a FIFO queue
// of work items that supports returning a failed item to its head.
package readiness

import (
	"slices"
	"sync"
	"time"

	"github.com/arloliu/courier/types"
)

// Registry is a stack of ready workers ordered by most recent readiness.
//
// A worker appears at most once; a repeated signal moves it to the top.
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	records []types.ReadinessRecord // top of stack is the last element
	now     func() time.Time
}

// NewRegistry creates an empty registry. A nil clock defaults to time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}

	return &Registry{now: now}
}

// MarkReady pushes workerID to the top of the stack, removing any earlier entry.
func (r *Registry) MarkReady(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = slices.DeleteFunc(r.records, func(rec types.ReadinessRecord) bool {
		return rec.WorkerID == workerID
	})
	r.records = append(r.records, types.ReadinessRecord{WorkerID: workerID, LastReadyAt: r.now()})
}

// TakeReady pops the most recently ready worker.
//
// A popped worker stays out of the registry until it signals again.
func (r *Registry) TakeReady() (types.ReadinessRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.records)
	if n == 0 {
		return types.ReadinessRecord{}, false
	}
	rec := r.records[n-1]
	r.records = r.records[:n-1]

	return rec, true
}

// Remove drops workerID from the registry. Returns true if it was present.
func (r *Registry) Remove(workerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.records)
	r.records = slices.DeleteFunc(r.records, func(rec types.ReadinessRecord) bool {
		return rec.WorkerID == workerID
	})

	return len(r.records) != before
}

// Len returns the number of ready workers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.records)
}

// Snapshot returns the ready workers from most to least recently ready.
func (r *Registry) Snapshot() []types.ReadinessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := slices.Clone(r.records)
	slices.Reverse(out)

	return out
}
