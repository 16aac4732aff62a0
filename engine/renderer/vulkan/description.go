package vulkan

import (
	"sort"

	vk "github.com/goki/vulkan"
)

type DescriptorType uint8

const (
	DescriptorUniformBuffer DescriptorType = iota
	// DescriptorUniformBufferDynamic is re-pointed per draw with a dynamic offset.
	DescriptorUniformBufferDynamic
	DescriptorStorageBuffer
	DescriptorStorageBufferDynamic
	DescriptorSampler
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorInputAttachment
)

func (t DescriptorType) Native() vk.DescriptorType {
	switch t {
	case DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case DescriptorUniformBufferDynamic:
		return vk.DescriptorTypeUniformBufferDynamic
	case DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case DescriptorStorageBufferDynamic:
		return vk.DescriptorTypeStorageBufferDynamic
	case DescriptorSampler:
		return vk.DescriptorTypeSampler
	case DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage
	case DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage
	default:
		return vk.DescriptorTypeInputAttachment
	}
}

func (t DescriptorType) IsDynamic() bool {
	return t == DescriptorUniformBufferDynamic || t == DescriptorStorageBufferDynamic
}

func (t DescriptorType) IsBuffer() bool {
	return t <= DescriptorStorageBufferDynamic
}

// IsImage reports descriptor types that need a layout transition before drawing.
func (t DescriptorType) IsImage() bool {
	return t >= DescriptorCombinedImageSampler
}

func (t DescriptorType) String() string {
	switch t {
	case DescriptorUniformBuffer:
		return "uniform"
	case DescriptorUniformBufferDynamic:
		return "uniform-dynamic"
	case DescriptorStorageBuffer:
		return "storage"
	case DescriptorStorageBufferDynamic:
		return "storage-dynamic"
	case DescriptorSampler:
		return "sampler"
	case DescriptorCombinedImageSampler:
		return "combined-image-sampler"
	case DescriptorSampledImage:
		return "sampled-image"
	case DescriptorStorageImage:
		return "storage-image"
	default:
		return "input-attachment"
	}
}

// DescriptorDesc is one named shader resource.
type DescriptorDesc struct {
	Name    string
	Type    DescriptorType
	Binding uint32
	Stages  vk.ShaderStageFlags
	// Size is the byte size of inline uniform data, zero for other types.
	Size uint32
}

// ArgumentGroup becomes one descriptor set.
type ArgumentGroup struct {
	Descriptors []DescriptorDesc
}

type PushConstantBlock struct {
	Stage vk.ShaderStageFlagBits
	Size  uint32
}

type ShaderBinary struct {
	Stage vk.ShaderStageFlagBits
	Entry string
	Code  []byte
}

type VertexBinding struct {
	Binding     uint32
	Stride      uint32
	PerInstance bool
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   vk.Format
	Offset   uint32
}

type VertexLayout struct {
	Bindings   []VertexBinding
	Attributes []VertexAttribute
	Topology   vk.PrimitiveTopology
}

type BlendState struct {
	Enable    bool
	SrcColor  vk.BlendFactor
	DstColor  vk.BlendFactor
	ColorOp   vk.BlendOp
	SrcAlpha  vk.BlendFactor
	DstAlpha  vk.BlendFactor
	AlphaOp   vk.BlendOp
	WriteMask vk.ColorComponentFlags
}

type DepthStencilState struct {
	DepthTest   bool
	DepthWrite  bool
	Compare     vk.CompareOp
	StencilTest bool
}

type RasterState struct {
	CullMode  vk.CullModeFlags
	FrontFace vk.FrontFace
	Wireframe bool
}

type RenderState struct {
	Blend        BlendState
	DepthStencil DepthStencilState
	Raster       RasterState
}

// PipelineDescription is the engine-facing declaration of a pipeline. It is
// treated as immutable once handed to a cache, which keeps its own copy.
type PipelineDescription struct {
	Name          string
	Shaders       []ShaderBinary
	Vertex        VertexLayout
	State         RenderState
	Groups        []ArgumentGroup
	PushConstants []PushConstantBlock
}

// LayoutDescription is the binding shape of a pipeline. Shader code is not
// part of it, so pipelines that differ only in bytecode share one layout.
type LayoutDescription struct {
	Groups        []ArgumentGroup
	PushConstants []PushConstantBlock
}

func (d *PipelineDescription) Layout() LayoutDescription {
	layout := LayoutDescription{
		Groups:        make([]ArgumentGroup, len(d.Groups)),
		PushConstants: append([]PushConstantBlock(nil), d.PushConstants...),
	}
	for i, g := range d.Groups {
		layout.Groups[i].Descriptors = append([]DescriptorDesc(nil), g.Descriptors...)
	}
	return layout
}

// Clone deep copies the description, bytecode included.
func (d *PipelineDescription) Clone() PipelineDescription {
	layout := d.Layout()
	clone := PipelineDescription{
		Name:          d.Name,
		Shaders:       make([]ShaderBinary, len(d.Shaders)),
		State:         d.State,
		Groups:        layout.Groups,
		PushConstants: layout.PushConstants,
		Vertex: VertexLayout{
			Bindings:   append([]VertexBinding(nil), d.Vertex.Bindings...),
			Attributes: append([]VertexAttribute(nil), d.Vertex.Attributes...),
			Topology:   d.Vertex.Topology,
		},
	}
	for i, s := range d.Shaders {
		clone.Shaders[i] = ShaderBinary{Stage: s.Stage, Entry: s.Entry, Code: append([]byte(nil), s.Code...)}
	}
	return clone
}

// sortedDescriptors returns the group's descriptors ordered by binding.
func (g ArgumentGroup) sortedDescriptors() []DescriptorDesc {
	sorted := append([]DescriptorDesc(nil), g.Descriptors...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Binding < sorted[j].Binding
	})
	return sorted
}

func (l LayoutDescription) writeHash(h *hasher) {
	h.u32(uint32(len(l.Groups)))
	for _, g := range l.Groups {
		descriptors := g.sortedDescriptors()
		h.u32(uint32(len(descriptors)))
		for _, d := range descriptors {
			h.str(d.Name).u32(uint32(d.Type)).u32(d.Binding).u32(uint32(d.Stages)).u32(d.Size)
		}
	}
	h.u32(uint32(len(l.PushConstants)))
	for _, pc := range l.PushConstants {
		h.u32(uint32(pc.Stage)).u32(pc.Size)
	}
}

// Hash covers names, binding metadata and push constant blocks.
func (l LayoutDescription) Hash() uint64 {
	h := newHasher()
	l.writeHash(h)
	return h.sum()
}

func (d *PipelineDescription) LayoutHash() uint64 {
	return d.Layout().Hash()
}

// StateHash identifies the executable pipeline: layout, shader code, vertex
// input and fixed function state.
func (d *PipelineDescription) StateHash() uint64 {
	h := newHasher()
	d.Layout().writeHash(h)

	h.u32(uint32(len(d.Shaders)))
	for _, s := range d.Shaders {
		h.u32(uint32(s.Stage)).str(s.Entry).bytes(s.Code)
	}

	h.u32(uint32(len(d.Vertex.Bindings)))
	for _, b := range d.Vertex.Bindings {
		h.u32(b.Binding).u32(b.Stride).boolean(b.PerInstance)
	}
	h.u32(uint32(len(d.Vertex.Attributes)))
	for _, a := range d.Vertex.Attributes {
		h.u32(a.Location).u32(a.Binding).u32(uint32(a.Format)).u32(a.Offset)
	}
	h.u32(uint32(d.Vertex.Topology))

	blend := d.State.Blend
	h.boolean(blend.Enable).
		u32(uint32(blend.SrcColor)).u32(uint32(blend.DstColor)).u32(uint32(blend.ColorOp)).
		u32(uint32(blend.SrcAlpha)).u32(uint32(blend.DstAlpha)).u32(uint32(blend.AlphaOp)).
		u32(uint32(blend.WriteMask))

	ds := d.State.DepthStencil
	h.boolean(ds.DepthTest).boolean(ds.DepthWrite).u32(uint32(ds.Compare)).boolean(ds.StencilTest)

	raster := d.State.Raster
	h.u32(uint32(raster.CullMode)).u32(uint32(raster.FrontFace)).boolean(raster.Wireframe)
	return h.sum()
}
