package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShardCount = 64

// MemoryStore is the process-local fallback. It keeps at most one record per
// identity: a record whose date differs from the requested one reads as
// absent and is overwritten on the next insert, which is how day rollover
// and stale-entry cleanup both happen.
//
// It is non-authoritative: replicas each count independently while the
// remote store is down, so global limits are not enforced during an outage.
type MemoryStore struct {
	shards [memoryShardCount]memoryShard
}

type memoryShard struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
}

type memoryRecord struct {
	date         string
	used         int
	lastChargeAt *time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*memoryRecord)
	}
	return s
}

func (s *MemoryStore) ReadSnapshot(_ context.Context, identity, date string) (Snapshot, error) {
	shard := s.shard(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[identity]
	if !ok || rec.date != date {
		return Snapshot{}, nil
	}
	return Snapshot{Exists: true, Used: rec.used, LastChargeAt: copyTime(rec.lastChargeAt)}, nil
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, identity, date string, used int, lastChargeAt time.Time) (bool, error) {
	shard := s.shard(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if rec, ok := shard.records[identity]; ok && rec.date == date {
		return false, nil
	}
	at := lastChargeAt
	shard.records[identity] = &memoryRecord{date: date, used: used, lastChargeAt: &at}
	return true, nil
}

func (s *MemoryStore) ConditionalUpdate(_ context.Context, identity, date string, expected Snapshot, newUsed int, newLastChargeAt time.Time) (bool, error) {
	shard := s.shard(identity)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[identity]
	if !ok || rec.date != date {
		return false, nil
	}
	if rec.used != expected.Used || !timesEqual(rec.lastChargeAt, expected.LastChargeAt) {
		return false, nil
	}
	at := newLastChargeAt
	rec.used = newUsed
	rec.lastChargeAt = &at
	return true, nil
}

func (s *MemoryStore) shard(identity string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &s.shards[h.Sum32()%memoryShardCount]
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
