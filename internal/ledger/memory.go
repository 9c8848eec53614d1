// Package ledger remembers recently completed fragment groups.
//
// The resequencer consults a ledger before storing a fragment so that a
// redelivered fragment of an already emitted group is dead-lettered instead
// of starting a second reassembly of the same id.
package ledger

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/courier/types"
)

// Memory is an in-process CompletionLedger with a retention window.
//
// A retention of zero disables the ledger: every id is reported unseen and
// Record is a no-op.
type Memory struct {
	entries   *xsync.Map[string, time.Time]
	retention time.Duration
	now       func() time.Time
}

var _ types.CompletionLedger = (*Memory)(nil)

// NewMemory creates an in-memory ledger. A nil clock defaults to time.Now.
func NewMemory(retention time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}

	return &Memory{
		entries:   xsync.NewMap[string, time.Time](),
		retention: retention,
		now:       now,
	}
}

// Seen reports whether groupID completed within the retention window.
func (m *Memory) Seen(_ context.Context, groupID string) (bool, error) {
	if m.retention <= 0 {
		return false, nil
	}
	completedAt, ok := m.entries.Load(groupID)
	if !ok {
		return false, nil
	}

	return m.now().Sub(completedAt) < m.retention, nil
}

// Record marks groupID as completed now.
func (m *Memory) Record(_ context.Context, groupID string) error {
	if m.retention <= 0 {
		return nil
	}
	m.entries.Store(groupID, m.now())

	return nil
}

// Prune removes entries older than the retention window.
func (m *Memory) Prune(_ context.Context) int {
	cutoff := m.now().Add(-m.retention)

	var expired []string
	m.entries.Range(func(id string, completedAt time.Time) bool {
		if !completedAt.After(cutoff) {
			expired = append(expired, id)
		}

		return true
	})
	for _, id := range expired {
		m.entries.Delete(id)
	}

	return len(expired)
}

// Len returns the number of retained ids.
func (m *Memory) Len() int {
	return m.entries.Size()
}
