package syncutil

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
)

const shardCount = 256

// ContextShardedMutex is a fixed pool of channel-based mutexes keyed by
// string. Waiters give up when their context is done.
//
// Locks are not reentrant and distinct keys may share a shard, so a caller
// must never hold one key while acquiring another from the same pool unless
// it goes through LockManyContext.
type ContextShardedMutex struct {
	shards [shardCount]chanMutex
	once   sync.Once
}

type chanMutex struct {
	ch chan struct{}
}

// NewContextShardedMutex creates a new context-aware sharded mutex.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	m.init()
	return m
}

func (m *ContextShardedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i].ch = make(chan struct{}, 1)
			m.shards[i].ch <- struct{}{} // unlocked
		}
	})
}

// LockContext acquires the mutex for key. The caller must call the returned
// unlock function. On context cancellation it returns nil and ctx.Err().
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	m.init()
	shard := &m.shards[shardIdx(key)]

	select {
	case <-shard.ch:
		return func() { shard.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LockManyContext acquires every shard covering keys in ascending shard
// order, so two callers locking overlapping key sets cannot deadlock.
// Duplicate keys and keys sharing a shard are locked once.
func (m *ContextShardedMutex) LockManyContext(ctx context.Context, keys ...string) (func(), error) {
	m.init()

	seen := make(map[uint32]struct{}, len(keys))
	idxs := make([]uint32, 0, len(keys))
	for _, k := range keys {
		i := shardIdx(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idxs = append(idxs, i)
	}
	sort.Slice(idxs, func(a, b int) bool { return idxs[a] < idxs[b] })

	held := make([]*chanMutex, 0, len(idxs))
	unlockAll := func() {
		for j := len(held) - 1; j >= 0; j-- {
			held[j].ch <- struct{}{}
		}
	}

	for _, i := range idxs {
		shard := &m.shards[i]
		select {
		case <-shard.ch:
			held = append(held, shard)
		case <-ctx.Done():
			unlockAll()
			return nil, ctx.Err()
		}
	}
	return unlockAll, nil
}

func shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
