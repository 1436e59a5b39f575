package geometry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/log"
)

var logger = log.New("geometry")

// ErrUnknownGeometry is returned by Release for a hash with no live entry.
var ErrUnknownGeometry = fmt.Errorf("unknown geometry: %w", errs.ErrInvalidInput)

// BuildFunc builds the group for a hash seen for the first time.
type BuildFunc func() (*Group, error)

// DestroyFunc releases the device resources of a group whose last claim was released.
type DestroyFunc func(*Group)

// CacheStats counts cache activity since creation.
type CacheStats struct {
	Entries  int
	Claims   int
	Hits     int
	Misses   int
	Builds   int
	Failures int
	Destroys int
}

type entry struct {
	group *Group
	refs  int
}

type cache struct {
	mu      *sync.RWMutex
	entries map[Hash]*entry
	destroy DestroyFunc
	stats   CacheStats
}

// Cache maps geometry hashes to reference-counted groups.
// An entry exists exactly while its reference count is positive.
// Thread-safe for concurrent access.
type Cache interface {
	// Intern claims the group for hash, building it on first use.
	//
	// Parameters:
	//   - hash: the geometry key
	//   - build: called only when hash has no live entry
	//
	// Returns:
	//   - *Group: the shared group
	//   - bool: true if an existing group was reused
	//   - error: the build error; nothing is stored on failure
	Intern(hash Hash, build BuildFunc) (*Group, bool, error)

	// Release drops one claim on hash and destroys the group when the last claim goes.
	//
	// Parameters:
	//   - hash: the geometry key
	//
	// Returns:
	//   - bool: true if the group was destroyed
	//   - error: ErrUnknownGeometry if hash has no live entry
	Release(hash Hash) (bool, error)

	// Lookup returns the group for hash without claiming it.
	Lookup(hash Hash) (*Group, bool)

	// RefCount returns the number of claims on hash, or 0.
	RefCount(hash Hash) int

	// Len returns the number of live groups.
	Len() int

	// Hashes returns the live keys in ascending order.
	Hashes() []Hash

	// Stats returns activity counters.
	Stats() CacheStats

	// Clear destroys every group regardless of claims.
	Clear()
}

var _ Cache = &cache{}

// NewCache creates an empty cache. Panics if destroy is nil.
//
// Parameters:
//   - destroy: releases a group's device resources
//
// Returns:
//   - Cache: the new cache
func NewCache(destroy DestroyFunc) Cache {
	if destroy == nil {
		panic("geometry: nil destroy function")
	}
	return &cache{
		mu:      &sync.RWMutex{},
		entries: make(map[Hash]*entry),
		destroy: destroy,
	}
}

func (c *cache) Intern(hash Hash, build BuildFunc) (*Group, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[hash]; ok {
		e.refs++
		c.stats.Hits++
		logger.Debugf("reusing geometry %s (refs %d)", hash, e.refs)
		return e.group, true, nil
	}

	c.stats.Misses++
	g, err := build()
	if err != nil {
		c.stats.Failures++
		return nil, false, err
	}
	g.Hash = hash
	c.entries[hash] = &entry{group: g, refs: 1}
	c.stats.Builds++
	logger.Infof("created geometry %s: %d vertices, %d triangles", hash, g.VertexCount, g.TriangleCount())
	return g, false, nil
}

func (c *cache) Release(hash Hash) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[hash]
	if !ok {
		return false, fmt.Errorf("release %s: %w", hash, ErrUnknownGeometry)
	}
	e.refs--
	if e.refs > 0 {
		return false, nil
	}
	delete(c.entries, hash)
	c.destroy(e.group)
	c.stats.Destroys++
	logger.Debugf("destroyed geometry %s", hash)
	return true, nil
}

func (c *cache) Lookup(hash Hash) (*Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[hash]; ok {
		return e.group, true
	}
	return nil, false
}

func (c *cache) RefCount(hash Hash) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[hash]; ok {
		return e.refs
	}
	return 0
}

func (c *cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *cache) Hashes() []Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Hash, 0, len(c.entries))
	for h := range c.entries {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.stats
	st.Entries = len(c.entries)
	for _, e := range c.entries {
		st.Claims += e.refs
	}
	return st
}

func (c *cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, e := range c.entries {
		c.destroy(e.group)
		c.stats.Destroys++
		delete(c.entries, h)
	}
}
