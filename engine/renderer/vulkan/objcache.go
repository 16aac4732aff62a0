package vulkan

import (
	"github.com/dolthub/swiss"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// Prototype is a value description that can be turned into a GPU object.
type Prototype interface {
	Hash() uint64
}

type cacheEntry[P Prototype, O any] struct {
	prototype P
	object    O
}

type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// ObjectCache memoizes objects built from prototypes under the prototype's
// content hash. Entries live until Cleanup; there is no eviction. A failed
// creation leaves nothing behind so the next request retries it.
type ObjectCache[H any, P Prototype, O any] struct {
	name    string
	entries *swiss.Map[uint64, *cacheEntry[P, O]]
	create  func(host H, prototype P) (O, error)
	destroy func(host H, object O)
	hits    uint64
	misses  uint64
}

func NewObjectCache[H any, P Prototype, O any](
	name string,
	create func(host H, prototype P) (O, error),
	destroy func(host H, object O),
) *ObjectCache[H, P, O] {
	return &ObjectCache[H, P, O]{
		name:    name,
		entries: swiss.NewMap[uint64, *cacheEntry[P, O]](16),
		create:  create,
		destroy: destroy,
	}
}

// GetObject returns the cached object for prototype, creating it on a miss.
func (c *ObjectCache[H, P, O]) GetObject(host H, prototype P) (O, uint64, error) {
	hash := prototype.Hash()
	if entry, ok := c.entries.Get(hash); ok {
		c.hits++
		return entry.object, hash, nil
	}

	c.misses++
	object, err := c.create(host, prototype)
	if err != nil {
		core.LogError("%s cache: creating %#016x failed: %v", c.name, hash, err)
		var zero O
		return zero, hash, err
	}
	c.entries.Put(hash, &cacheEntry[P, O]{prototype: prototype, object: object})
	core.LogDebug("%s cache: created %#016x (%d entries)", c.name, hash, c.entries.Count())
	return object, hash, nil
}

// Lookup returns an object previously created under hash.
func (c *ObjectCache[H, P, O]) Lookup(hash uint64) (O, bool) {
	entry, ok := c.entries.Get(hash)
	if !ok {
		var zero O
		return zero, false
	}
	return entry.object, true
}

// Prototype returns the copy of the description stored with the object.
func (c *ObjectCache[H, P, O]) Prototype(hash uint64) (P, bool) {
	entry, ok := c.entries.Get(hash)
	if !ok {
		var zero P
		return zero, false
	}
	return entry.prototype, true
}

// Each visits every entry until fn returns false.
func (c *ObjectCache[H, P, O]) Each(fn func(hash uint64, prototype P, object O) bool) {
	c.entries.Iter(func(hash uint64, entry *cacheEntry[P, O]) bool {
		return !fn(hash, entry.prototype, entry.object)
	})
}

// Destroy drops a single entry and destroys its object.
func (c *ObjectCache[H, P, O]) Destroy(host H, hash uint64) bool {
	entry, ok := c.entries.Get(hash)
	if !ok {
		return false
	}
	c.entries.Delete(hash)
	c.destroy(host, entry.object)
	return true
}

// Cleanup destroys every entry. The cache stays usable afterwards.
func (c *ObjectCache[H, P, O]) Cleanup(host H) {
	count := c.entries.Count()
	c.entries.Iter(func(_ uint64, entry *cacheEntry[P, O]) bool {
		c.destroy(host, entry.object)
		return false
	})
	c.entries.Clear()
	if count > 0 {
		core.LogDebug("%s cache: destroyed %d entries", c.name, count)
	}
}

func (c *ObjectCache[H, P, O]) Len() int {
	return c.entries.Count()
}

func (c *ObjectCache[H, P, O]) Stats() CacheStats {
	return CacheStats{Entries: c.entries.Count(), Hits: c.hits, Misses: c.misses}
}
