package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

type VulkanBuffer struct {
	Name   string
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags
	// Mapped is non-nil for host visible buffers created with mapping.
	Mapped []byte

	access AccessType
}

type BufferDesc struct {
	Name       string
	Size       uint64
	Usage      vk.BufferUsageFlags
	Properties vk.MemoryPropertyFlags
	// Map keeps host visible memory persistently mapped.
	Map bool
}

func NewVulkanBuffer(driver Driver, desc BufferDesc) (*VulkanBuffer, error) {
	handle, memory, err := driver.CreateBuffer(desc.Size, desc.Usage, desc.Properties)
	if err != nil {
		core.LogError("creating buffer %s (%d bytes): %v", desc.Name, desc.Size, err)
		return nil, err
	}
	buffer := &VulkanBuffer{
		Name:   desc.Name,
		Handle: handle,
		Memory: memory,
		Size:   desc.Size,
		Usage:  desc.Usage,
		access: AccessNone,
	}
	if desc.Map {
		data, err := driver.MapMemory(memory, desc.Size)
		if err != nil {
			driver.DestroyBuffer(handle, memory)
			return nil, err
		}
		buffer.Mapped = data
	}
	return buffer, nil
}

// Access returns the tracked state.
func (b *VulkanBuffer) Access() AccessType {
	return b.access
}

func (b *VulkanBuffer) setAccess(a AccessType) {
	b.access = a
}

func (b *VulkanBuffer) Destroy(driver Driver) {
	if b.Mapped != nil {
		driver.UnmapMemory(b.Memory)
		b.Mapped = nil
	}
	driver.DestroyBuffer(b.Handle, b.Memory)
	b.Handle = vk.NullBuffer
	b.Memory = vk.NullDeviceMemory
}
