package meshsync

import (
	"github.com/metaworking/meshsync/pkg/scene"
)

// entityCache keeps the entities of previous cycles so their buffers can be
// refilled instead of reallocated.
type entityCache[T scene.Entity] struct {
	kind        scene.EntityType
	items       []T
	cursor      int
	newFn       func() T
	allocations int
}

func newEntityCache[T scene.Entity](kind scene.EntityType, newFn func() T) *entityCache[T] {
	return &entityCache[T]{kind: kind, newFn: newFn}
}

func (cache *entityCache[T]) rewind() {
	cache.cursor = 0
}

func (cache *entityCache[T]) allocate() T {
	cache.allocations++
	cacheAllocations.WithLabelValues(cache.kind.String()).Inc()
	return cache.newFn()
}

// getCacheOrCreate returns the slot under the cursor, reset, or a new entity.
// While the caches are lent to an outgoing message the entity is allocated
// and left out of the cache.
func getCacheOrCreate[T scene.Entity](c *Context, cache *entityCache[T]) T {
	if c.cachesLent() {
		return cache.allocate()
	}
	if cache.cursor < len(cache.items) {
		v := cache.items[cache.cursor]
		cache.cursor++
		v.Reset()
		return v
	}
	v := cache.allocate()
	cache.items = append(cache.items, v)
	cache.cursor++
	return v
}

type CacheStat struct {
	Size        int
	Allocations int
}

// CacheStats returns the size and the allocation count of every entity cache.
func (c *Context) CacheStats() map[scene.EntityType]CacheStat {
	return map[scene.EntityType]CacheStat{
		scene.EntityTransform: {len(c.transformCache.items), c.transformCache.allocations},
		scene.EntityCamera:    {len(c.cameraCache.items), c.cameraCache.allocations},
		scene.EntityLight:     {len(c.lightCache.items), c.lightCache.allocations},
		scene.EntityMesh:      {len(c.meshCache.items), c.meshCache.allocations},
	}
}

func (c *Context) rewindCaches() {
	// An unprepared scene still references the slots filled so far.
	if len(c.scene.Objects) > 0 {
		return
	}
	c.transformCache.rewind()
	c.cameraCache.rewind()
	c.lightCache.rewind()
	c.meshCache.rewind()
}
