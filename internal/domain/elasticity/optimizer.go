package elasticity

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Optimizer memoizes fitted parameters per creator in a bounded LRU cache.
// The cache belongs to the caller: build one per worker and Clear it as needed.
type Optimizer struct {
	model *Model
	cache *lru.Cache[string, Parameters]
}

// NewOptimizer creates an optimizer with a cache of model.Config().CacheSize entries
func NewOptimizer(model *Model) (*Optimizer, error) {
	cache, err := lru.New[string, Parameters](model.Config().CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticity cache: %w", err)
	}
	return &Optimizer{model: model, cache: cache}, nil
}

// Model returns the underlying model
func (o *Optimizer) Model() *Model { return o.model }

// Get returns cached parameters for a creator
func (o *Optimizer) Get(creatorID string) (Parameters, bool) {
	return o.cache.Get(creatorID)
}

// Fit returns cached parameters for the creator or fits and caches new ones.
// The boolean reports a cache hit.
func (o *Optimizer) Fit(creatorID string, points []VolumePoint) (Parameters, bool) {
	if p, ok := o.cache.Get(creatorID); ok {
		return p, true
	}
	p := o.model.Fit(points)
	o.cache.Add(creatorID, p)
	return p, false
}

// FitFunc is Fit with lazily loaded points, so a cache hit skips the load
func (o *Optimizer) FitFunc(creatorID string, load func() ([]VolumePoint, error)) (Parameters, bool, error) {
	if p, ok := o.cache.Get(creatorID); ok {
		return p, true, nil
	}
	points, err := load()
	if err != nil {
		return Parameters{}, false, err
	}
	p := o.model.Fit(points)
	o.cache.Add(creatorID, p)
	return p, false, nil
}

// Invalidate drops one creator from the cache
func (o *Optimizer) Invalidate(creatorID string) {
	o.cache.Remove(creatorID)
}

// Clear empties the cache
func (o *Optimizer) Clear() {
	o.cache.Purge()
}

// Len returns the number of cached creators
func (o *Optimizer) Len() int {
	return o.cache.Len()
}
