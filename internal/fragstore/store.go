// Package fragstore buffers fragments per group until every position arrived.
//
// The store is sharded by xxh3(group_id). All operations on a single group
// take exactly one shard lock, so at most one caller observes the completion
// of a group.
package fragstore

import (
	"sync"
	"time"

	"github.com/arloliu/courier/types"
	"github.com/zeebo/xxh3"
)

// DefaultShards is the default number of shards.
const DefaultShards = 32

// Store maps group ids to partially received fragment groups.
//
// Store is safe for concurrent use.
type Store struct {
	shards []*shard
	mask   uint64
	now    func() time.Time
}

type shard struct {
	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	total        int
	slots        [][]byte
	filled       []bool
	received     int
	size         int
	firstArrival time.Time
	lastArrival  time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithShards sets the shard count. The value is rounded up to a power of two.
// Values < 1 fall back to DefaultShards.
func WithShards(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = DefaultShards
		}
		size := 1
		for size < n {
			size <<= 1
		}
		s.shards = make([]*shard, size)
	}
}

// WithClock overrides the time source used for arrival timestamps and eviction.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.shards == nil {
		s.shards = make([]*shard, DefaultShards)
	}
	for i := range s.shards {
		s.shards[i] = &shard{groups: make(map[string]*group)}
	}
	s.mask = uint64(len(s.shards) - 1)

	return s
}

func (s *Store) shardFor(groupID string) *shard {
	return s.shards[xxh3.HashString(groupID)&s.mask]
}

// Put stores a fragment and reports the resulting group status.
//
// Rules are checked in order:
//   - Total < 1 is rejected with RejectInvalidTotal.
//   - A known group with a different total is rejected with RejectTotalMismatch.
//   - A position outside [1, Total] is rejected with RejectPositionOutOfRange.
//   - A filled slot is rejected with RejectDuplicatePosition.
//
// Rejections never mutate the store. When the fragment completes its group,
// the slots are concatenated in position order, the group is removed and the
// returned status carries the payload.
func (s *Store) Put(f types.Fragment) types.GroupStatus {
	if f.Total < 1 {
		return types.Rejected(types.RejectInvalidTotal)
	}

	arrival := f.ReceivedAt
	if arrival.IsZero() {
		arrival = s.now()
	}

	sh := s.shardFor(f.GroupID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	g, exists := sh.groups[f.GroupID]
	if exists && g.total != f.Total {
		return types.Rejected(types.RejectTotalMismatch)
	}
	if f.Position < 1 || f.Position > f.Total {
		return types.Rejected(types.RejectPositionOutOfRange)
	}

	if !exists {
		g = &group{
			total:        f.Total,
			slots:        make([][]byte, f.Total),
			filled:       make([]bool, f.Total),
			firstArrival: arrival,
		}
		sh.groups[f.GroupID] = g
	}

	idx := f.Position - 1
	if g.filled[idx] {
		return types.Rejected(types.RejectDuplicatePosition)
	}

	g.slots[idx] = f.Payload
	g.filled[idx] = true
	g.received++
	g.size += len(f.Payload)
	if arrival.After(g.lastArrival) {
		g.lastArrival = arrival
	}

	if g.received < g.total {
		return types.Incomplete()
	}

	delete(sh.groups, f.GroupID)

	payload := make([]byte, 0, g.size)
	for _, part := range g.slots {
		payload = append(payload, part...)
	}

	status := types.Completed(payload)
	status.Span = g.lastArrival.Sub(g.firstArrival)

	return status
}

// EvictStale removes groups whose last fragment arrived before now-olderThan.
//
// Returns the number of evicted groups. Fragments arriving later for an
// evicted group id start a fresh group.
func (s *Store) EvictStale(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan)
	evicted := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, g := range sh.groups {
			if g.lastArrival.Before(cutoff) {
				delete(sh.groups, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}

	return evicted
}

// Len returns the number of pending (incomplete) groups.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.groups)
		sh.mu.Unlock()
	}

	return n
}

// Received returns how many fragments of groupID are buffered, and whether the group exists.
func (s *Store) Received(groupID string) (int, bool) {
	sh := s.shardFor(groupID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	g, ok := sh.groups[groupID]
	if !ok {
		return 0, false
	}

	return g.received, true
}
