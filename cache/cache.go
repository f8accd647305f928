// Package cache holds compiled tools keyed by tool ID.
//
// There is at most one live version per tool. An entry is served only when
// its digest matches the digest of the current source; otherwise it is
// stale and replaced on the next build. Entries never expire on their own.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/toolcompiler/tool"
)

// Stats reports cache activity since creation or the last Clear.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
	Builds  uint64
}

// BuildFunc produces the compiled form of one tool version.
type BuildFunc func() (*tool.Compiled, error)

// Cache is the compilation cache.
//
// Contract:
// - Concurrency: safe for concurrent use; readers never block each other.
// - Errors: build errors from Do are returned unchanged and nothing is stored.
// - Ownership: stored *tool.Compiled values are immutable and shared.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*tool.Compiled
	group   singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	builds atomic.Uint64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*tool.Compiled)}
}

// Get returns the live entry for id regardless of digest.
func (c *Cache) Get(id string) (*tool.Compiled, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Lookup returns the entry for id only if it was built from source with the
// given digest.
func (c *Cache) Lookup(id, digest string) (*tool.Compiled, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || e.Digest != digest {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e, true
}

// Put stores c as the live version of its tool, superseding any other.
func (c *Cache) Put(compiled *tool.Compiled) {
	if compiled == nil {
		return
	}
	c.mu.Lock()
	c.entries[compiled.ID] = compiled
	c.mu.Unlock()
}

// InvalidateIfStale removes the entry for id when its digest differs from
// digest. It reports whether an entry was removed.
func (c *Cache) InvalidateIfStale(id, digest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.Digest == digest {
		return false
	}
	delete(c.entries, id)
	return true
}

// Remove drops the entry for id, if any.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*tool.Compiled)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
	c.builds.Store(0)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IDs returns the IDs of the live entries in no particular order.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	return out
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Builds:  c.builds.Load(),
	}
}

// Do returns the entry for id at digest, building and storing it if absent.
// Concurrent callers asking for the same id and digest share a single build.
// Callers asking for different digests of one id never share a result.
func (c *Cache) Do(ctx context.Context, id, digest string, build BuildFunc) (*tool.Compiled, error) {
	if e, ok := c.Lookup(id, digest); ok {
		return e, nil
	}
	return c.Build(ctx, id, digest, build)
}

// Build is Do without the counted lookup, for callers that have already
// missed. A caller whose ctx ends stops waiting with ctx.Err(); the shared
// build keeps running for the others and is stored when it succeeds.
func (c *Cache) Build(ctx context.Context, id, digest string, build BuildFunc) (*tool.Compiled, error) {
	ch := c.group.DoChan(id+"@"+digest, func() (any, error) {
		// A concurrent flight may have finished before this one started.
		c.mu.RLock()
		e, ok := c.entries[id]
		c.mu.RUnlock()
		if ok && e.Digest == digest {
			return e, nil
		}

		c.builds.Add(1)
		compiled, err := build()
		if err != nil {
			return nil, err
		}
		c.Put(compiled)
		return compiled, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tool.Compiled), nil
	}
}
