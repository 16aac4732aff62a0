package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
	"github.com/vkngwrapper/arsenal/memutils"
)

// UniformAllocation is a transient block of the uniform ring. Data aliases
// mapped memory and is only valid until the next Tick of the frame that
// allocated it.
type UniformAllocation struct {
	Buffer *VulkanBuffer
	Offset uint64
	Size   uint64
	Data   []byte
}

type UniformRingStats struct {
	ChunkSize uint64
	Capacity  uint64
	Used      uint64
	Growths   int
	Retired   int
}

// UniformRingAllocator bump allocates transient uniform data. The backing
// buffer is split into one chunk per flight slot; each slot allocates from
// its own chunk and starts over when the slot comes around again.
type UniformRingAllocator struct {
	driver    Driver
	alignment uint64
	maxChunk  uint64
	growth    uint64

	buffer  *VulkanBuffer
	chunk   uint64
	cursor  uint64
	index   int
	retired [][]*VulkanBuffer
	growths int
}

func NewUniformRingAllocator(driver Driver, cfg *core.Config) (*UniformRingAllocator, error) {
	alignment := driver.MinUniformBufferOffsetAlignment()
	if alignment == 0 {
		alignment = defaultUniformAlignment
	}
	if err := memutils.CheckPow2(uint(alignment), "minUniformBufferOffsetAlignment"); err != nil {
		return nil, errors.Wrap(err, "uniform ring")
	}
	u := &UniformRingAllocator{
		driver:    driver,
		alignment: alignment,
		maxChunk:  cfg.Uniforms.MaxChunkSize,
		growth:    cfg.Uniforms.GrowthFactor,
		retired:   make([][]*VulkanBuffer, cfg.MaxFlightCount),
	}
	if err := u.createBuffer(u.alignUp(cfg.Uniforms.InitialChunkSize)); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UniformRingAllocator) alignUp(size uint64) uint64 {
	return uint64(memutils.AlignUp(int(size), uint(u.alignment)))
}

func (u *UniformRingAllocator) createBuffer(chunk uint64) error {
	buffer, err := NewVulkanBuffer(u.driver, BufferDesc{
		Name:       "uniform-ring",
		Size:       chunk * uint64(len(u.retired)),
		Usage:      vk.BufferUsageFlags(uniformRingUsage),
		Properties: vk.MemoryPropertyFlags(uniformRingMemory),
		Map:        true,
	})
	if err != nil {
		return err
	}
	u.buffer = buffer
	u.chunk = chunk
	u.cursor = 0
	return nil
}

// grow retires the current buffer under the current slot and replaces it
// with one whose chunk holds at least need bytes.
func (u *UniformRingAllocator) grow(need uint64) error {
	chunk := u.chunk
	for {
		chunk *= u.growth
		if chunk >= need || chunk >= u.maxChunk {
			break
		}
	}
	if chunk > u.maxChunk {
		chunk = u.maxChunk
	}
	chunk = u.alignUp(chunk)

	old := u.buffer
	if err := u.createBuffer(chunk); err != nil {
		return err
	}
	u.retired[u.index] = append(u.retired[u.index], old)
	u.growths++
	core.LogDebug("uniform ring: grew chunk to %d bytes, retired %d byte buffer", chunk, old.Size)
	return nil
}

// Allocate returns size bytes, rounded up to the device alignment, from the
// current slot's chunk. On exhaustion the ring grows once; a request that
// cannot fit the largest allowed chunk is an integration error.
func (u *UniformRingAllocator) Allocate(size uint64) (UniformAllocation, error) {
	if size == 0 {
		size = 1
	}
	aligned := u.alignUp(size)
	if aligned > u.maxChunk {
		return UniformAllocation{}, core.IntegrationError(core.ErrAllocationTooLarge,
			"uniform allocation of %d bytes exceeds the maximum chunk of %d bytes", size, u.maxChunk)
	}

	if u.cursor+aligned > u.chunk {
		if err := u.grow(aligned); err != nil {
			return UniformAllocation{}, err
		}
		if u.cursor+aligned > u.chunk {
			return UniformAllocation{}, core.IntegrationError(core.ErrAllocationTooLarge,
				"uniform allocation of %d bytes does not fit a grown chunk of %d bytes", size, u.chunk)
		}
	}

	offset := uint64(u.index)*u.chunk + u.cursor
	u.cursor += aligned
	return UniformAllocation{
		Buffer: u.buffer,
		Offset: offset,
		Size:   size,
		Data:   u.buffer.Mapped[offset : offset+size : offset+size],
	}, nil
}

// Tick advances to the next flight slot, destroys the buffers retired while
// that slot was last current and rewinds its chunk.
func (u *UniformRingAllocator) Tick() {
	u.index = (u.index + 1) % len(u.retired)
	u.releaseSlot(u.index)
	u.cursor = 0
}

func (u *UniformRingAllocator) releaseSlot(slot int) {
	for _, buffer := range u.retired[slot] {
		buffer.Destroy(u.driver)
	}
	u.retired[slot] = nil
}

func (u *UniformRingAllocator) Buffer() *VulkanBuffer {
	return u.buffer
}

func (u *UniformRingAllocator) Stats() UniformRingStats {
	retired := 0
	for _, r := range u.retired {
		retired += len(r)
	}
	stats := UniformRingStats{
		ChunkSize: u.chunk,
		Used:      u.cursor,
		Growths:   u.growths,
		Retired:   retired,
	}
	if u.buffer != nil {
		stats.Capacity = u.buffer.Size
	}
	return stats
}

// Destroy releases every buffer. The device must be idle.
func (u *UniformRingAllocator) Destroy() {
	for i := range u.retired {
		u.releaseSlot(i)
	}
	if u.buffer != nil {
		u.buffer.Destroy(u.driver)
		u.buffer = nil
	}
}
