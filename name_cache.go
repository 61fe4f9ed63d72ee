package hypersparse

import (
	"hash/maphash"
	"sync"
)

// lruCache is a sharded LRU map. Each shard has its own mutex.
// A capacity <= 0 disables the cache; every method stays safe to call.
type lruCache[K comparable, V any] struct {
	shards    []lruShard[K, V]
	shardMask uint64
	seed      maphash.Seed
	capacity  int
}

type lruShard[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*lruEntry[K, V]
	head     *lruEntry[K, V] // most recently used
	tail     *lruEntry[K, V] // least recently used
	capacity int
}

type lruEntry[K comparable, V any] struct {
	key  K
	val  V
	prev *lruEntry[K, V]
	next *lruEntry[K, V]
}

const cacheShardCount = 16

func newLRUCache[K comparable, V any](capacity int) *lruCache[K, V] {
	c := &lruCache[K, V]{
		shards:    make([]lruShard[K, V], cacheShardCount),
		shardMask: uint64(cacheShardCount - 1),
		seed:      maphash.MakeSeed(),
		capacity:  capacity,
	}
	perShard := max(capacity/cacheShardCount, 1)
	for i := range c.shards {
		c.shards[i] = lruShard[K, V]{
			items:    make(map[K]*lruEntry[K, V]),
			capacity: perShard,
		}
	}
	return c
}

func (c *lruCache[K, V]) shard(key K) *lruShard[K, V] {
	return &c.shards[maphash.Comparable(c.seed, key)&c.shardMask]
}

// Get returns the cached value for key and marks it most recently used.
func (c *lruCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.capacity <= 0 {
		return zero, false
	}
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return zero, false
	}
	s.moveToFront(e)
	return e.val, true
}

// Put inserts or refreshes key, evicting the shard's LRU entry if full.
func (c *lruCache[K, V]) Put(key K, val V) {
	if c.capacity <= 0 {
		return
	}
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[key]; ok {
		e.val = val
		s.moveToFront(e)
		return
	}
	e := &lruEntry[K, V]{key: key, val: val}
	s.items[key] = e
	s.pushFront(e)
	if len(s.items) > s.capacity {
		s.evictLRU()
	}
}

// Len returns the number of cached entries.
func (c *lruCache[K, V]) Len() int {
	if c.capacity <= 0 {
		return 0
	}
	total := 0
	for i := range c.shards {
		c.shards[i].mu.Lock()
		total += len(c.shards[i].items)
		c.shards[i].mu.Unlock()
	}
	return total
}

// Caller must hold the shard lock for the list operations below.

func (s *lruShard[K, V]) moveToFront(e *lruEntry[K, V]) {
	if s.head == e {
		return
	}
	s.removeEntry(e)
	s.pushFront(e)
}

func (s *lruShard[K, V]) pushFront(e *lruEntry[K, V]) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *lruShard[K, V]) removeEntry(e *lruEntry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (s *lruShard[K, V]) evictLRU() {
	if s.tail == nil {
		return
	}
	victim := s.tail
	s.removeEntry(victim)
	delete(s.items, victim.key)
}

// nameCache caches the immutable name <-> id pairs in both directions.
type nameCache struct {
	byName *lruCache[string, NodeID]
	byID   *lruCache[NodeID, string]
}

func newNameCache(capacity int) *nameCache {
	return &nameCache{
		byName: newLRUCache[string, NodeID](capacity),
		byID:   newLRUCache[NodeID, string](capacity),
	}
}

func (c *nameCache) put(name string, id NodeID) {
	c.byName.Put(name, id)
	c.byID.Put(id, name)
}
