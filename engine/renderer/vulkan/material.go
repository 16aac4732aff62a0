package vulkan

import (
	"fmt"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/containers"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// DescriptorResource is what a descriptor points at: a BufferResource or an
// ImageResource.
type DescriptorResource interface {
	descriptorResource()
}

// BufferResource binds Range bytes of Buffer at Offset. For dynamic
// descriptors Offset travels as the dynamic offset. A zero Range means the
// declared size of the descriptor, or the rest of the buffer.
type BufferResource struct {
	Buffer *VulkanBuffer
	Offset uint64
	Range  uint64
}

// ImageResource binds an image view, a sampler or both depending on the
// descriptor type.
type ImageResource struct {
	Image   *VulkanImage
	Sampler vk.Sampler
}

func (BufferResource) descriptorResource() {}
func (ImageResource) descriptorResource()  {}

// VulkanMaterial binds resources to the descriptors of a MaterialLayout.
// A set is never rewritten once it may have been handed to the GPU; any
// change that needs a new descriptor write moves the set to a fresh one and
// the old set goes back to the allocator.
type VulkanMaterial struct {
	Name      string
	layout    *MaterialLayout
	allocator *DescriptorSetAllocator
	driver    Driver

	writes      []vk.WriteDescriptorSet
	bufferInfos []vk.DescriptorBufferInfo
	imageInfos  []vk.DescriptorImageInfo
	resources   []DescriptorResource

	written        []containers.BitMask[uint64]
	realloc        containers.BitMask[uint8]
	sets           []DescriptorSet
	dynamicOffsets []uint32
}

func NewVulkanMaterial(name string, layout *MaterialLayout, allocator *DescriptorSetAllocator) *VulkanMaterial {
	count := layout.WriteCount()
	m := &VulkanMaterial{
		Name:           name,
		layout:         layout,
		allocator:      allocator,
		driver:         allocator.driver,
		writes:         make([]vk.WriteDescriptorSet, count),
		bufferInfos:    make([]vk.DescriptorBufferInfo, count),
		imageInfos:     make([]vk.DescriptorImageInfo, count),
		resources:      make([]DescriptorResource, count),
		written:        make([]containers.BitMask[uint64], len(layout.Sets)),
		sets:           make([]DescriptorSet, len(layout.Sets)),
		dynamicOffsets: make([]uint32, layout.DynamicCount),
	}
	for i, d := range layout.Descriptors {
		m.writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstBinding:      d.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  d.Type.Native(),
		}
		if d.Type.IsBuffer() {
			m.writes[i].PBufferInfo = m.bufferInfos[i : i+1]
		} else {
			m.writes[i].PImageInfo = m.imageInfos[i : i+1]
		}
	}
	m.Reset()
	return m
}

func (m *VulkanMaterial) Layout() *MaterialLayout {
	return m.layout
}

// Handle resolves a descriptor name of the material's layout.
func (m *VulkanMaterial) Handle(name string) (ResourceHandle, error) {
	h, ok := m.layout.Handle(name)
	if !ok {
		return 0, errors.Mark(errors.Newf("material %s has no descriptor %q", m.Name, name), core.ErrUnknownDescriptor)
	}
	return h, nil
}

func (m *VulkanMaterial) UpdateDescriptorByName(name string, resource DescriptorResource) error {
	h, err := m.Handle(name)
	if err != nil {
		return err
	}
	return m.UpdateDescriptor(h, resource)
}

// UpdateDescriptor records resource for the descriptor addressed by h.
func (m *VulkanMaterial) UpdateDescriptor(h ResourceHandle, resource DescriptorResource) error {
	if !h.IsValid() || int(h.WriteIndex()) >= len(m.resources) || m.layout.descriptor(h).Handle != h {
		return errors.Mark(errors.Newf("material %s: %s does not belong to its layout", m.Name, h), core.ErrUnknownDescriptor)
	}
	d := m.layout.descriptor(h)
	fields := h.Decode()

	switch r := resource.(type) {
	case BufferResource:
		if !d.Type.IsBuffer() {
			return core.IntegrationError(core.ErrInvalidDescription, "descriptor %q is %s, got a buffer", d.Name, d.Type)
		}
		if r.Buffer == nil {
			return core.IntegrationError(core.ErrInvalidDescription, "descriptor %q: nil buffer", d.Name)
		}
		if err := m.updateBuffer(d, fields, r); err != nil {
			return err
		}
	case ImageResource:
		if d.Type.IsBuffer() {
			return core.IntegrationError(core.ErrInvalidDescription, "descriptor %q is %s, got an image", d.Name, d.Type)
		}
		if err := m.updateImage(d, fields, r); err != nil {
			return err
		}
	default:
		return core.IntegrationError(core.ErrInvalidDescription, "descriptor %q: unsupported resource %T", d.Name, resource)
	}

	m.resources[fields.WriteIndex] = resource
	m.written[fields.Set].Set(uint(fields.Binding))
	return nil
}

func (m *VulkanMaterial) updateBuffer(d *LayoutDescriptor, fields ResourceHandleFields, r BufferResource) error {
	size := r.Range
	if size == 0 {
		switch {
		case d.Size > 0:
			size = uint64(d.Size)
		case d.Type.IsDynamic():
			// The window of a dynamic descriptor must not move with its offset.
			return core.IntegrationError(core.ErrInvalidDescription,
				"descriptor %q: dynamic buffers need a range or a declared size", d.Name)
		default:
			size = r.Buffer.Size - r.Offset
		}
	}
	if r.Offset+size > r.Buffer.Size {
		return core.IntegrationError(core.ErrInvalidDescription, "descriptor %q: range [%d, %d) outside buffer %s of %d bytes",
			d.Name, r.Offset, r.Offset+size, r.Buffer.Name, r.Buffer.Size)
	}

	if d.Type.IsDynamic() {
		m.dynamicOffsets[fields.SpecifiedIndex] = uint32(r.Offset)
		info := m.bufferInfos[fields.WriteIndex]
		if m.written[fields.Set].Has(uint(fields.Binding)) && info.Buffer == r.Buffer.Handle && uint64(info.Range) == size {
			return nil
		}
		m.bufferInfos[fields.WriteIndex] = vk.DescriptorBufferInfo{
			Buffer: r.Buffer.Handle,
			Offset: 0,
			Range:  vk.DeviceSize(size),
		}
	} else {
		m.bufferInfos[fields.WriteIndex] = vk.DescriptorBufferInfo{
			Buffer: r.Buffer.Handle,
			Offset: vk.DeviceSize(r.Offset),
			Range:  vk.DeviceSize(size),
		}
	}
	m.realloc.Set(uint(fields.Set))
	return nil
}

func (m *VulkanMaterial) updateImage(d *LayoutDescriptor, fields ResourceHandleFields, r ImageResource) error {
	info := vk.DescriptorImageInfo{Sampler: r.Sampler}
	if d.Type != DescriptorSampler {
		if r.Image == nil {
			return core.IntegrationError(core.ErrInvalidDescription, "descriptor %q: nil image", d.Name)
		}
		info.ImageView = r.Image.View
		info.ImageLayout = imageDescriptorAccess(d.Type).Layout()
	}
	if (d.Type == DescriptorSampler || d.Type == DescriptorCombinedImageSampler) && r.Sampler == vk.NullSampler {
		return core.IntegrationError(core.ErrInvalidDescription, "descriptor %q: %s needs a sampler", d.Name, d.Type)
	}
	m.imageInfos[fields.WriteIndex] = info
	m.realloc.Set(uint(fields.Set))
	return nil
}

// imageDescriptorAccess is the state an image must be in for a shader to
// use it through a descriptor of type t.
func imageDescriptorAccess(t DescriptorType) AccessType {
	switch t {
	case DescriptorStorageImage:
		return AccessShaderReadWrite
	case DescriptorInputAttachment:
		return AccessInputAttachmentRead
	default:
		return AccessShaderRead
	}
}

// SetUniformData copies data into a fresh block of the uniform ring and
// points the named buffer descriptor at it.
func (m *VulkanMaterial) SetUniformData(name string, data []byte, ring *UniformRingAllocator) error {
	h, err := m.Handle(name)
	if err != nil {
		return err
	}
	d := m.layout.descriptor(h)
	if d.Type != DescriptorUniformBuffer && d.Type != DescriptorUniformBufferDynamic {
		return core.IntegrationError(core.ErrInvalidDescription, "descriptor %q is %s, not a uniform buffer", name, d.Type)
	}
	size := uint64(len(data))
	if uint64(d.Size) > size {
		size = uint64(d.Size)
	}
	alloc, err := ring.Allocate(size)
	if err != nil {
		return err
	}
	copy(alloc.Data, data)
	return m.UpdateDescriptor(h, BufferResource{Buffer: alloc.Buffer, Offset: alloc.Offset, Range: size})
}

// TransitionImages moves every bound image into the state its descriptor
// reads it in. Must run outside a render pass, before Bind.
func (m *VulkanMaterial) TransitionImages(cmd *VulkanCommandBuffer) error {
	if cmd.State != COMMAND_BUFFER_STATE_RECORDING {
		return errors.AssertionFailedf("material %s: image transitions need a recording command buffer outside a render pass", m.Name)
	}
	for _, h := range m.layout.Images {
		d := m.layout.descriptor(h)
		r, ok := m.resources[h.WriteIndex()].(ImageResource)
		if !ok || r.Image == nil {
			continue
		}
		if _, err := cmd.TransitionImage(r.Image, imageDescriptorAccess(d.Type), 0, vk.PipelineStageFlags(stagesFor(d.Stages))); err != nil {
			return err
		}
	}
	return nil
}

// stagesFor maps shader stages to the pipeline stages they execute in.
func stagesFor(stages vk.ShaderStageFlags) vk.PipelineStageFlagBits {
	var out vk.PipelineStageFlagBits
	s := vk.ShaderStageFlagBits(stages)
	if s&vk.ShaderStageVertexBit != 0 {
		out |= vk.PipelineStageVertexShaderBit
	}
	if s&vk.ShaderStageFragmentBit != 0 {
		out |= vk.PipelineStageFragmentShaderBit
	}
	if s&vk.ShaderStageComputeBit != 0 {
		out |= vk.PipelineStageComputeShaderBit
	}
	if s&vk.ShaderStageGeometryBit != 0 {
		out |= vk.PipelineStageGeometryShaderBit
	}
	if out == 0 {
		out = vk.PipelineStageAllGraphicsBit
	}
	return out
}

// Validate reports the first set with a binding that was never written.
func (m *VulkanMaterial) Validate() error {
	for i := range m.layout.Sets {
		missing := m.written[i].Missing(m.layout.Sets[i].ExpectedMask)
		if missing.Empty() {
			continue
		}
		var bindings []uint
		missing.ForEach(func(b uint) { bindings = append(bindings, b) })
		return core.IntegrationError(core.ErrIncompleteMaterial, "material %s: set %d has unwritten bindings %v", m.Name, i, bindings)
	}
	return nil
}

// Bind allocates fresh sets for every set that changed, flushes their
// writes in one batch and binds all sets with the dynamic offsets.
func (m *VulkanMaterial) Bind(cmd *VulkanCommandBuffer, bindPoint vk.PipelineBindPoint) error {
	if !cmd.IsRecording() {
		return errors.AssertionFailedf("material %s bound to a command buffer that is not recording", m.Name)
	}
	if err := m.Validate(); err != nil {
		return err
	}

	var flush []vk.WriteDescriptorSet
	var failed error
	m.realloc.ForEach(func(i uint) {
		if failed != nil {
			return
		}
		info := m.layout.Sets[i]
		set, err := m.allocator.Allocate(info.Layout)
		if err != nil {
			failed = errors.Wrapf(err, "material %s: allocating set %d", m.Name, i)
			return
		}
		m.allocator.Release(m.sets[i])
		m.sets[i] = set
		for w := info.WriteBase; w < info.WriteBase+info.DescriptorCount; w++ {
			m.writes[w].DstSet = set.Handle
			flush = append(flush, m.writes[w])
		}
		m.realloc.Clear(i)
	})
	if len(flush) > 0 {
		m.driver.UpdateDescriptorSets(flush)
	}
	if failed != nil {
		return failed
	}

	handles := make([]vk.DescriptorSet, len(m.sets))
	for i := range m.sets {
		handles[i] = m.sets[i].Handle
	}
	m.driver.CmdBindDescriptorSets(cmd.Handle, bindPoint, m.layout.PipelineLayout, 0, handles, m.dynamicOffsets)
	return nil
}

// Reset forces every set to be reallocated on the next Bind. Written
// resources are kept.
func (m *VulkanMaterial) Reset() {
	for i := range m.layout.Sets {
		m.realloc.Set(uint(i))
	}
}

// Destroy returns the material's sets to the allocator.
func (m *VulkanMaterial) Destroy() {
	for i := range m.sets {
		m.allocator.Release(m.sets[i])
		m.sets[i] = DescriptorSet{}
	}
	m.Reset()
}

func (m *VulkanMaterial) String() string {
	return fmt.Sprintf("VulkanMaterial(%s, layout=%#016x)", m.Name, m.layout.Hash)
}
