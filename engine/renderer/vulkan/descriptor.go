package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// DescriptorSet is a set together with the pool it must be returned to.
type DescriptorSet struct {
	Handle vk.DescriptorSet
	pool   int
}

type DescriptorAllocatorStats struct {
	Pools     int
	Live      int
	Allocated uint64
	Freed     uint64
	Pending   int
}

// DescriptorSetAllocator hands out descriptor sets from a growing list of
// pools. Released sets are only freed once their flight slot comes around
// again, so a set the GPU may still read is never freed.
type DescriptorSetAllocator struct {
	driver   Driver
	maxSets  uint32
	sizes    []vk.DescriptorPoolSize
	pools    []vk.DescriptorPool
	lastGood int

	index   int
	pending [][]DescriptorSet

	allocated uint64
	freed     uint64
}

func NewDescriptorSetAllocator(driver Driver, cfg *core.Config) *DescriptorSetAllocator {
	sizes := make([]vk.DescriptorPoolSize, len(poolDescriptorTypes))
	for i, t := range poolDescriptorTypes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            t.Native(),
			DescriptorCount: cfg.Descriptors.DescriptorsPerType,
		}
	}
	return &DescriptorSetAllocator{
		driver:  driver,
		maxSets: cfg.Descriptors.MaxSetsPerPool,
		sizes:   sizes,
		pending: make([][]DescriptorSet, cfg.MaxFlightCount),
	}
}

func (a *DescriptorSetAllocator) createPool() error {
	pool, err := a.driver.CreateDescriptorPool(a.maxSets, a.sizes)
	if err != nil {
		core.LogError("failed to create descriptor pool: %v", err)
		return err
	}
	a.pools = append(a.pools, pool)
	core.LogDebug("descriptor allocator: created pool %d (%d sets)", len(a.pools)-1, a.maxSets)
	return nil
}

// Allocate tries every pool starting at the last one that succeeded and
// creates a new pool when all of them are exhausted.
func (a *DescriptorSetAllocator) Allocate(layout vk.DescriptorSetLayout) (DescriptorSet, error) {
	for i := 0; i < len(a.pools); i++ {
		poolIndex := (a.lastGood + i) % len(a.pools)
		set, err := a.driver.AllocateDescriptorSet(a.pools[poolIndex], layout)
		if err == nil {
			a.lastGood = poolIndex
			a.allocated++
			return DescriptorSet{Handle: set, pool: poolIndex}, nil
		}
		if !isPoolExhausted(err) {
			return DescriptorSet{}, err
		}
	}

	if err := a.createPool(); err != nil {
		return DescriptorSet{}, err
	}
	poolIndex := len(a.pools) - 1
	set, err := a.driver.AllocateDescriptorSet(a.pools[poolIndex], layout)
	if err != nil {
		// A fresh pool that cannot hold one set means the layout itself is larger than a pool.
		return DescriptorSet{}, errors.Wrapf(err, "allocating from a new pool")
	}
	a.lastGood = poolIndex
	a.allocated++
	return DescriptorSet{Handle: set, pool: poolIndex}, nil
}

// Release queues set to be freed once the current flight slot recycles.
func (a *DescriptorSetAllocator) Release(set DescriptorSet) {
	if set.Handle == vk.NullDescriptorSet {
		return
	}
	a.pending[a.index] = append(a.pending[a.index], set)
}

// Tick advances to the next flight slot and frees the sets released while
// that slot was last current.
func (a *DescriptorSetAllocator) Tick() {
	a.index = (a.index + 1) % len(a.pending)
	a.freeSlot(a.index)
}

func (a *DescriptorSetAllocator) freeSlot(slot int) {
	queue := a.pending[slot]
	if len(queue) == 0 {
		return
	}
	byPool := map[int][]vk.DescriptorSet{}
	for _, set := range queue {
		byPool[set.pool] = append(byPool[set.pool], set.Handle)
	}
	// Sets that fail to free stay queued and are retried when the slot
	// comes around again.
	var kept []DescriptorSet
	for pool, sets := range byPool {
		if err := a.driver.FreeDescriptorSets(a.pools[pool], sets); err != nil {
			core.LogError("failed to free %d descriptor sets from pool %d: %v", len(sets), pool, err)
			for _, set := range sets {
				kept = append(kept, DescriptorSet{Handle: set, pool: pool})
			}
			continue
		}
		a.freed += uint64(len(sets))
	}
	a.pending[slot] = kept
}

func (a *DescriptorSetAllocator) Stats() DescriptorAllocatorStats {
	pending := 0
	for _, q := range a.pending {
		pending += len(q)
	}
	return DescriptorAllocatorStats{
		Pools:     len(a.pools),
		Live:      int(a.allocated - a.freed),
		Allocated: a.allocated,
		Freed:     a.freed,
		Pending:   pending,
	}
}

// Destroy frees every pending set and destroys all pools. The device must be idle.
func (a *DescriptorSetAllocator) Destroy() {
	for i := range a.pending {
		a.freeSlot(i)
		// Destroying the pool below reclaims whatever could not be freed.
		a.freed += uint64(len(a.pending[i]))
		a.pending[i] = nil
	}
	for _, pool := range a.pools {
		a.driver.DestroyDescriptorPool(pool)
	}
	a.pools = nil
	a.lastGood = 0
}
