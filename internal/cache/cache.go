// Package cache implements a durable string-keyed map backed by a single JSON
// file.
//
// Every successful Set rewrites the complete snapshot through
// write.Atomically before returning, so the file on disk always holds either
// the previous or the new snapshot. This suits maps which are mutated once per
// completed unit of work rather than once per file.
package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/Debian/buildidx/internal/write"
)

// Cache is safe for concurrent use.
type Cache[V any] struct {
	path string

	mu sync.Mutex
	m  map[string]V
}

// Open loads the snapshot at path. A missing file yields an empty cache.
func Open[V any](path string) (*Cache[V], error) {
	c := &Cache[V]{
		path: path,
		m:    make(map[string]V),
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&c.m); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if c.m == nil {
		c.m = make(map[string]V) // file contained null
	}
	return c, nil
}

// Path returns the location of the snapshot file.
func (c *Cache[V]) Path() string { return c.path }

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Keys returns all keys in sorted order.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.m))
	for k := range c.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of the map.
func (c *Cache[V]) Snapshot() map[string]V {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]V, len(c.m))
	for k, v := range c.m {
		m[k] = v
	}
	return m
}

// Set stores value under key and persists the snapshot. When persisting
// fails, the in-memory map is left as it was before the call.
func (c *Cache[V]) Set(key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, existed := c.m[key]
	c.m[key] = value
	if err := c.persist(); err != nil {
		if existed {
			c.m[key] = prev
		} else {
			delete(c.m, key)
		}
		return fmt.Errorf("persisting %s: %w", c.path, err)
	}
	return nil
}

// persist must be called with c.mu held.
func (c *Cache[V]) persist() error {
	return write.Atomically(c.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(c.m)
	})
}

// Merge adds the entries of m whose keys are not present yet and persists
// the snapshot once. Existing values are never replaced. It returns the
// number of added entries.
func (c *Cache[V]) Merge(m map[string]V) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var added []string
	for k, v := range m {
		if _, ok := c.m[k]; ok {
			continue
		}
		c.m[k] = v
		added = append(added, k)
	}
	if len(added) == 0 {
		return 0, nil
	}
	if err := c.persist(); err != nil {
		for _, k := range added {
			delete(c.m, k)
		}
		return 0, fmt.Errorf("persisting %s: %w", c.path, err)
	}
	return len(added), nil
}
