package index

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

// Table accumulates candidates from concurrent scanners.
//
// Keys are partitioned into shards with independent locks, so writers only
// contend when they hash to the same shard. Because Fold keeps the maximum
// under a total order, the final contents do not depend on fold order.
type Table struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewTable creates an empty Table.
func NewTable() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]Entry)
	}
	return t
}

// Fold offers a candidate and reports whether it became the stored entry.
func (t *Table) Fold(e Entry) bool {
	key := e.Key.String()
	s := &t.shards[xxhash.Sum64String(key)%shardCount]

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && !e.Origin.Outranks(cur.Origin) {
		return false
	}
	s.entries[key] = e
	return true
}

// Len returns the number of distinct keys.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

func (t *Table) drain() []Entry {
	out := make([]Entry, 0, t.Len())
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for _, e := range s.entries {
			out = append(out, e)
		}
		s.entries = make(map[string]Entry)
		s.mu.Unlock()
	}
	return out
}
