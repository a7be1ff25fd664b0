// Package cache keeps recently used decoded pages in memory, keyed by page id.
package cache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
	"github.com/pkg/errors"
)

const DefaultSize = 1024

// Cache is a fixed capacity LRU of page id -> V. It is safe for concurrent
// use.
type Cache[V any] struct {
	lru *freelru.SyncedLRU[uint64, V]
}

func hashPageID(id uint64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	return uint32(xxhash.Sum64(buf[:]))
}

// New creates a cache holding up to size values. A size below 1 falls back
// to DefaultSize.
func New[V any](size int) (*Cache[V], error) {
	if size < 1 {
		size = DefaultSize
	}

	lru, err := freelru.NewSynced[uint64, V](uint32(size), hashPageID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create page cache")
	}
	return &Cache[V]{lru: lru}, nil
}

func (c *Cache[V]) Get(id uint64) (V, bool) {
	return c.lru.Get(id)
}

func (c *Cache[V]) Add(id uint64, v V) {
	c.lru.Add(id, v)
}

// Remove evicts the given ids.
func (c *Cache[V]) Remove(ids ...uint64) {
	for _, id := range ids {
		c.lru.Remove(id)
	}
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

func (c *Cache[V]) Clear() {
	c.lru.Purge()
}
