package fetch

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// indexCache is a small in-memory LRU of recently fetched small index
// bodies, keyed by URL. Validator-awareness is left to the caller:
// ingesters that care about revalidation bypass the cache by fetching
// with Cache: false (which leaves any cached entry in place) rather than
// this package tracking ETags
// itself, since the upstream snapshot service's index bodies are
// immutable once a timestamp is sealed.
type indexCache struct {
	lru *lru.Cache[string, []byte]
}

func newIndexCache(size int) *indexCache {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		// size <= 0 is the only failure mode of lru.New, and callers
		// already guard cacheSize <= 0 before constructing this cache.
		panic(err)
	}
	return &indexCache{lru: c}
}

func (c *indexCache) Get(key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *indexCache) Set(key string, value []byte) {
	c.lru.Add(key, value)
}
