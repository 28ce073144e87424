// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides a small sharded memoization cache with explicit
// get-or-create semantics. It backs the basis-matrix cache: entries are
// expensive to build, cheap to keep, and read far more often than written.
package cache

import (
	"sync"
	"sync/atomic"
)

// shardCount is the number of shards. Power of 2 for fast masking.
const shardCount = 8

// Hasher computes the shard hash for a key.
type Hasher[K any] func(K) uint64

// Memo is a thread-safe sharded memoization cache. Unlike an LRU, entries
// live for the lifetime of the Memo: the expected key population (a handful
// of (order, resolution) pairs per process) makes eviction pointless.
type Memo[K comparable, V any] struct {
	shards [shardCount]memoShard[K, V]
	hasher Hasher[K]

	hits   atomic.Uint64
	misses atomic.Uint64
}

type memoShard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
}

// NewMemo creates an empty cache using hasher for shard selection.
func NewMemo[K comparable, V any](hasher Hasher[K]) *Memo[K, V] {
	m := &Memo[K, V]{hasher: hasher}
	for i := range m.shards {
		m.shards[i].entries = make(map[K]V)
	}
	return m
}

func (m *Memo[K, V]) shard(key K) *memoShard[K, V] {
	return &m.shards[m.hasher(key)&(shardCount-1)]
}

// Get returns the cached value for key, if present.
func (m *Memo[K, V]) Get(key K) (V, bool) {
	s := m.shard(key)
	s.mu.Lock()
	v, ok := s.entries[key]
	s.mu.Unlock()
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return v, ok
}

// GetOrCreate returns the cached value for key, building and storing it
// with create on a miss. If create fails, nothing is stored and the error
// is returned; a later call will retry.
//
// create runs with the shard lock held, so concurrent callers for the same
// key build the value only once. Keys that hash to the same shard serialize
// behind it; with the expected handful of keys this never matters.
func (m *Memo[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.entries[key]; ok {
		m.hits.Add(1)
		return v, nil
	}
	m.misses.Add(1)

	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	s.entries[key] = v
	return v, nil
}

// Len returns the number of cached entries.
func (m *Memo[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Clear drops all entries.
func (m *Memo[K, V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		s.entries = make(map[K]V)
		s.mu.Unlock()
	}
}

// Stats reports hit/miss counters since creation.
func (m *Memo[K, V]) Stats() (hits, misses uint64) {
	return m.hits.Load(), m.misses.Load()
}

// PairHasher hashes a pair of small non-negative ints, suitable for keys
// like (SH order, LUT resolution).
func PairHasher(a, b int) uint64 {
	h := uint64(a)*0x9e3779b97f4a7c15 + uint64(b)
	h ^= h >> 29
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 32
	return h
}
