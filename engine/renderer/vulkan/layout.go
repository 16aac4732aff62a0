package vulkan

import (
	"sort"

	"github.com/dolthub/swiss"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/containers"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// SetInfo is the per descriptor set bookkeeping of a MaterialLayout.
type SetInfo struct {
	Layout vk.DescriptorSetLayout
	// DescriptorCount is the number of bindings in the set.
	DescriptorCount int
	// WriteBase is the index of the set's first entry in the write array.
	WriteBase int
	// DynamicCount and DynamicBase locate the set's slots in the dynamic offset array.
	DynamicCount int
	DynamicBase  int
	// ExpectedMask has one bit per binding declared in the set.
	ExpectedMask containers.BitMask[uint64]
}

// LayoutDescriptor is the resolved form of one DescriptorDesc, indexed by write index.
type LayoutDescriptor struct {
	DescriptorDesc
	Handle ResourceHandle
}

// MaterialLayout owns the native layouts derived from a LayoutDescription.
// It is shared by every material built against it and is destroyed only by
// the LayoutCache.
type MaterialLayout struct {
	Hash               uint64
	PipelineLayout     vk.PipelineLayout
	PushConstantRanges []vk.PushConstantRange
	Sets               []SetInfo
	// Descriptors is the flat write array template in set order.
	Descriptors []LayoutDescriptor
	// Images lists image-typed descriptors in set order.
	Images       []ResourceHandle
	DynamicCount int

	handles *swiss.Map[string, ResourceHandle]
}

func (l *MaterialLayout) SetLayouts() []vk.DescriptorSetLayout {
	layouts := make([]vk.DescriptorSetLayout, len(l.Sets))
	for i := range l.Sets {
		layouts[i] = l.Sets[i].Layout
	}
	return layouts
}

// Handle resolves a descriptor name.
func (l *MaterialLayout) Handle(name string) (ResourceHandle, bool) {
	return l.handles.Get(name)
}

func (l *MaterialLayout) WriteCount() int {
	return len(l.Descriptors)
}

func (l *MaterialLayout) descriptor(h ResourceHandle) *LayoutDescriptor {
	return &l.Descriptors[h.WriteIndex()]
}

// buildMaterialLayout validates desc and creates its native objects. Any
// violation is a caller bug and no native object survives it.
func buildMaterialLayout(driver Driver, desc LayoutDescription) (*MaterialLayout, error) {
	if len(desc.Groups) > MaxDescriptorSets {
		return nil, core.IntegrationError(core.ErrInvalidDescription, "%d argument groups exceed the limit of %d", len(desc.Groups), MaxDescriptorSets)
	}

	layout := &MaterialLayout{
		Hash:    desc.Hash(),
		Sets:    make([]SetInfo, len(desc.Groups)),
		handles: swiss.NewMap[string, ResourceHandle](16),
	}
	bindingsPerSet := make([][]vk.DescriptorSetLayoutBinding, len(desc.Groups))

	for setIndex, group := range desc.Groups {
		descriptors := group.sortedDescriptors()
		set := &layout.Sets[setIndex]
		set.WriteBase = len(layout.Descriptors)
		set.DynamicBase = layout.DynamicCount
		set.DescriptorCount = len(descriptors)

		for ordinal, d := range descriptors {
			if ordinal > 0 && d.Binding <= descriptors[ordinal-1].Binding {
				return nil, core.IntegrationError(core.ErrInvalidDescription, "set %d: binding %d of %q is not strictly increasing", setIndex, d.Binding, d.Name)
			}
			if d.Binding >= MaxBindingsPerSet {
				return nil, core.IntegrationError(core.ErrInvalidDescription, "set %d: binding %d of %q exceeds %d", setIndex, d.Binding, d.Name, MaxBindingsPerSet-1)
			}
			if d.Name == "" {
				return nil, core.IntegrationError(core.ErrInvalidDescription, "set %d: binding %d has no name", setIndex, d.Binding)
			}
			if layout.handles.Has(d.Name) {
				return nil, core.IntegrationError(core.ErrInvalidDescription, "descriptor name %q declared twice", d.Name)
			}
			if len(layout.Descriptors) >= MaxDescriptorWrites {
				return nil, core.IntegrationError(core.ErrInvalidDescription, "more than %d descriptors", MaxDescriptorWrites)
			}

			fields := ResourceHandleFields{
				Set:        uint32(setIndex),
				Binding:    d.Binding,
				Ordinal:    uint32(ordinal),
				WriteIndex: uint32(len(layout.Descriptors)),
			}
			switch {
			case d.Type.IsDynamic():
				if layout.DynamicCount >= MaxDynamicBuffers {
					return nil, core.IntegrationError(core.ErrInvalidDescription, "more than %d dynamic buffers", MaxDynamicBuffers)
				}
				fields.Kind = SpecifiedDynamicBuffer
				fields.SpecifiedIndex = uint32(layout.DynamicCount)
				layout.DynamicCount++
				set.DynamicCount++
			case d.Type.IsImage():
				if len(layout.Images) >= MaxImageDescriptors {
					return nil, core.IntegrationError(core.ErrInvalidDescription, "more than %d image descriptors", MaxImageDescriptors)
				}
				fields.Kind = SpecifiedImage
				fields.SpecifiedIndex = uint32(len(layout.Images))
			}

			handle := EncodeResourceHandle(fields)
			if fields.Kind == SpecifiedImage {
				layout.Images = append(layout.Images, handle)
			}
			layout.handles.Put(d.Name, handle)
			layout.Descriptors = append(layout.Descriptors, LayoutDescriptor{DescriptorDesc: d, Handle: handle})
			set.ExpectedMask.Set(uint(d.Binding))

			bindingsPerSet[setIndex] = append(bindingsPerSet[setIndex], vk.DescriptorSetLayoutBinding{
				Binding:         d.Binding,
				DescriptorType:  d.Type.Native(),
				DescriptorCount: 1,
				StageFlags:      d.Stages,
			})
		}
	}

	ranges, err := pushConstantRanges(desc.PushConstants)
	if err != nil {
		return nil, err
	}
	layout.PushConstantRanges = ranges

	for i := range layout.Sets {
		setLayout, err := driver.CreateDescriptorSetLayout(bindingsPerSet[i])
		if err != nil {
			layout.destroy(driver)
			return nil, err
		}
		layout.Sets[i].Layout = setLayout
	}

	pipelineLayout, err := driver.CreatePipelineLayout(layout.SetLayouts(), ranges)
	if err != nil {
		layout.destroy(driver)
		return nil, err
	}
	layout.PipelineLayout = pipelineLayout

	core.LogDebug("material layout %#016x: %d sets, %d descriptors, %d dynamic, %d images",
		layout.Hash, len(layout.Sets), len(layout.Descriptors), layout.DynamicCount, len(layout.Images))
	return layout, nil
}

// pushConstantRanges folds blocks into one range per stage, laid out
// back to back in stage bit order.
func pushConstantRanges(blocks []PushConstantBlock) ([]vk.PushConstantRange, error) {
	sizes := map[vk.ShaderStageFlagBits]uint32{}
	for _, b := range blocks {
		if b.Size == 0 {
			continue
		}
		if b.Size%4 != 0 {
			return nil, core.IntegrationError(core.ErrInvalidDescription, "push constant block of stage %#x has size %d, not a multiple of 4", uint32(b.Stage), b.Size)
		}
		sizes[b.Stage] += b.Size
	}
	stages := make([]vk.ShaderStageFlagBits, 0, len(sizes))
	for stage := range sizes {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })

	ranges := make([]vk.PushConstantRange, 0, len(stages))
	offset := uint32(0)
	for _, stage := range stages {
		ranges = append(ranges, vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(stage),
			Offset:     offset,
			Size:       sizes[stage],
		})
		offset += sizes[stage]
	}
	return ranges, nil
}

func (l *MaterialLayout) destroy(driver Driver) {
	if l.PipelineLayout != vk.NullPipelineLayout {
		driver.DestroyPipelineLayout(l.PipelineLayout)
		l.PipelineLayout = vk.NullPipelineLayout
	}
	for i := range l.Sets {
		if l.Sets[i].Layout != vk.NullDescriptorSetLayout {
			driver.DestroyDescriptorSetLayout(l.Sets[i].Layout)
			l.Sets[i].Layout = vk.NullDescriptorSetLayout
		}
	}
}

// LayoutCache hands out one MaterialLayout per distinct layout hash.
type LayoutCache struct {
	driver Driver
	cache  *ObjectCache[Driver, LayoutDescription, *MaterialLayout]
}

func NewLayoutCache(driver Driver) *LayoutCache {
	return &LayoutCache{
		driver: driver,
		cache: NewObjectCache("layout", buildMaterialLayout, func(d Driver, l *MaterialLayout) {
			l.destroy(d)
		}),
	}
}

func (c *LayoutCache) Get(desc *PipelineDescription) (*MaterialLayout, error) {
	layout, _, err := c.cache.GetObject(c.driver, desc.Layout())
	return layout, err
}

func (c *LayoutCache) Lookup(hash uint64) (*MaterialLayout, bool) {
	return c.cache.Lookup(hash)
}

func (c *LayoutCache) Stats() CacheStats {
	return c.cache.Stats()
}

func (c *LayoutCache) Destroy() {
	c.cache.Cleanup(c.driver)
}
