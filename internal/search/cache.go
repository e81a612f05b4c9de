package search

import (
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/extsearch/internal/query"
)

// DefaultCacheSize is the number of query trees kept when no size is set.
const DefaultCacheSize = 512

// QueryCache maps "{index}__{model}" keys to built query trees. Entries
// never expire; they are dropped by Remove or Purge. Concurrent misses on
// one key share a single build.
type QueryCache struct {
	entries *lru.Cache[string, query.Node]
	group   singleflight.Group
	// generation advances on Purge so that builds started before the
	// purge are not stored after it.
	generation atomic.Uint64
}

// NewQueryCache creates a cache holding up to size trees.
func NewQueryCache(size int) *QueryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, _ := lru.New[string, query.Node](size)
	return &QueryCache{entries: entries}
}

// Get returns the tree cached under key. A cached nil tree is a hit.
func (c *QueryCache) Get(key string) (query.Node, bool) {
	return c.entries.Get(key)
}

// Add stores n under key.
func (c *QueryCache) Add(key string, n query.Node) {
	c.entries.Add(key, n)
}

// Remove drops key.
func (c *QueryCache) Remove(key string) {
	c.entries.Remove(key)
}

// Purge drops every entry.
func (c *QueryCache) Purge() {
	c.generation.Add(1)
	c.entries.Purge()
}

// Len returns the number of cached trees.
func (c *QueryCache) Len() int {
	return c.entries.Len()
}

// Load returns the tree cached under key, building and storing it on a
// miss. hit reports whether the tree came from the cache.
func (c *QueryCache) Load(key string, build func() (query.Node, error)) (n query.Node, hit bool, err error) {
	if n, ok := c.entries.Get(key); ok {
		return n, true, nil
	}

	gen := c.generation.Load()
	v, err, _ := c.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		if n, ok := c.entries.Get(key); ok {
			return n, nil
		}
		n, err := build()
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.entries.Add(key, n)
		}
		return n, nil
	})
	if err != nil {
		return nil, false, err
	}
	n, _ = v.(query.Node)
	return n, false, nil
}
