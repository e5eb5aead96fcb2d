package content

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sawpanic/volumerun/internal/persistence"
)

// Optimizer caches content profiles per creator in a bounded LRU owned by the caller
type Optimizer struct {
	weighter *Weighter
	cache    *lru.Cache[string, Profile]
}

// NewOptimizer creates an optimizer with a cache of weighter.Config().CacheSize entries
func NewOptimizer(weighter *Weighter) (*Optimizer, error) {
	cache, err := lru.New[string, Profile](weighter.Config().CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create content profile cache: %w", err)
	}
	return &Optimizer{weighter: weighter, cache: cache}, nil
}

// Weighter returns the underlying weighter
func (o *Optimizer) Weighter() *Weighter { return o.weighter }

// Profile returns the cached profile or loads and caches a new one.
// The boolean reports a cache hit.
func (o *Optimizer) Profile(creatorID string, load func() ([]persistence.ContentTypePerformance, error)) (Profile, bool, error) {
	if p, ok := o.cache.Get(creatorID); ok {
		return p, true, nil
	}
	rows, err := load()
	if err != nil {
		return Profile{}, false, err
	}
	p := NewProfile(creatorID, rows)
	o.cache.Add(creatorID, p)
	return p, false, nil
}

// Allocate loads (or reuses) the creator profile and splits total across its ranked types
func (o *Optimizer) Allocate(creatorID string, total int, load func() ([]persistence.ContentTypePerformance, error)) (map[string]int, Profile, error) {
	p, _, err := o.Profile(creatorID, load)
	if err != nil {
		return nil, Profile{}, err
	}
	alloc, err := o.weighter.AllocateByContentType(total, p.Types(), p)
	if err != nil {
		return nil, p, err
	}
	return alloc, p, nil
}

// Invalidate drops one creator from the cache
func (o *Optimizer) Invalidate(creatorID string) { o.cache.Remove(creatorID) }

// Clear empties the cache
func (o *Optimizer) Clear() { o.cache.Purge() }

// Len returns the number of cached creators
func (o *Optimizer) Len() int { return o.cache.Len() }
