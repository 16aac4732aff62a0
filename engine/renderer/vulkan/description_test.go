package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"
)

var (
	vertexStage   = vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	fragmentStage = vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
)

// sampleDescription declares three sets: per-frame and per-object uniforms,
// two textures, and a storage buffer.
func sampleDescription(vertexCode, fragmentCode []byte) *PipelineDescription {
	return &PipelineDescription{
		Name: "lit",
		Shaders: []ShaderBinary{
			{Stage: vk.ShaderStageVertexBit, Entry: "main", Code: vertexCode},
			{Stage: vk.ShaderStageFragmentBit, Entry: "main", Code: fragmentCode},
		},
		Vertex: VertexLayout{
			Bindings: []VertexBinding{{Binding: 0, Stride: 32}},
			Attributes: []VertexAttribute{
				{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
				{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 12},
			},
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		State: RenderState{
			Raster:       RasterState{CullMode: vk.CullModeFlags(vk.CullModeBackBit), FrontFace: vk.FrontFaceCounterClockwise},
			DepthStencil: DepthStencilState{DepthTest: true, DepthWrite: true, Compare: vk.CompareOpLess},
		},
		Groups: []ArgumentGroup{
			{Descriptors: []DescriptorDesc{
				{Name: "object", Type: DescriptorUniformBufferDynamic, Binding: 1, Stages: vertexStage, Size: 64},
				{Name: "camera", Type: DescriptorUniformBuffer, Binding: 0, Stages: vertexStage, Size: 128},
			}},
			{Descriptors: []DescriptorDesc{
				{Name: "albedo", Type: DescriptorCombinedImageSampler, Binding: 0, Stages: fragmentStage},
				{Name: "normal", Type: DescriptorCombinedImageSampler, Binding: 2, Stages: fragmentStage},
			}},
			{Descriptors: []DescriptorDesc{
				{Name: "lights", Type: DescriptorStorageBuffer, Binding: 0, Stages: fragmentStage},
			}},
		},
		PushConstants: []PushConstantBlock{
			{Stage: vk.ShaderStageVertexBit, Size: 64},
			{Stage: vk.ShaderStageFragmentBit, Size: 16},
		},
	}
}

func spirv(tag byte) []byte {
	return []byte{0x03, 0x02, 0x23, 0x07, tag, 0, 0, 0}
}

func TestPipelineHashesAreDeterministic(t *testing.T) {
	a := sampleDescription(spirv(1), spirv(2))
	b := sampleDescription(spirv(1), spirv(2))

	require.Equal(t, a.StateHash(), a.StateHash())
	require.Equal(t, a.StateHash(), b.StateHash())
	require.Equal(t, a.LayoutHash(), b.LayoutHash())
}

func TestPipelineHashesTrackEveryField(t *testing.T) {
	base := sampleDescription(spirv(1), spirv(2))

	mutations := map[string]func(d *PipelineDescription){
		"bytecode":      func(d *PipelineDescription) { d.Shaders[0].Code = spirv(9) },
		"entry":         func(d *PipelineDescription) { d.Shaders[1].Entry = "frag" },
		"stride":        func(d *PipelineDescription) { d.Vertex.Bindings[0].Stride = 48 },
		"attribute":     func(d *PipelineDescription) { d.Vertex.Attributes[1].Offset = 16 },
		"topology":      func(d *PipelineDescription) { d.Vertex.Topology = vk.PrimitiveTopologyLineList },
		"cull":          func(d *PipelineDescription) { d.State.Raster.CullMode = vk.CullModeFlags(vk.CullModeNone) },
		"wireframe":     func(d *PipelineDescription) { d.State.Raster.Wireframe = true },
		"depth":         func(d *PipelineDescription) { d.State.DepthStencil.DepthWrite = false },
		"blend":         func(d *PipelineDescription) { d.State.Blend.Enable = true },
		"binding":       func(d *PipelineDescription) { d.Groups[1].Descriptors[1].Binding = 3 },
		"name":          func(d *PipelineDescription) { d.Groups[2].Descriptors[0].Name = "shadows" },
		"type":          func(d *PipelineDescription) { d.Groups[2].Descriptors[0].Type = DescriptorStorageBufferDynamic },
		"push constant": func(d *PipelineDescription) { d.PushConstants[1].Size = 32 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := base.Clone()
			mutate(&changed)
			require.NotEqual(t, base.StateHash(), changed.StateHash())
		})
	}
}

func TestLayoutHashIgnoresShaderCode(t *testing.T) {
	a := sampleDescription(spirv(1), spirv(2))
	b := sampleDescription(spirv(7), spirv(8))
	require.Equal(t, a.LayoutHash(), b.LayoutHash())
	require.NotEqual(t, a.StateHash(), b.StateHash())

	b.Groups[0].Descriptors[0].Stages = vertexStage | fragmentStage
	require.NotEqual(t, a.LayoutHash(), b.LayoutHash())
}

func TestLayoutHashIsIndependentOfDeclarationOrder(t *testing.T) {
	a := sampleDescription(spirv(1), spirv(2))
	b := sampleDescription(spirv(1), spirv(2))
	g := b.Groups[0].Descriptors
	g[0], g[1] = g[1], g[0]
	require.Equal(t, a.LayoutHash(), b.LayoutHash())
}

func TestCloneDoesNotAlias(t *testing.T) {
	a := sampleDescription(spirv(1), spirv(2))
	c := a.Clone()
	c.Shaders[0].Code[4] = 0xff
	c.Groups[0].Descriptors[0].Name = "changed"
	c.Vertex.Attributes[0].Offset = 4

	require.Equal(t, byte(1), a.Shaders[0].Code[4])
	require.Equal(t, "object", a.Groups[0].Descriptors[0].Name)
	require.Equal(t, uint32(0), a.Vertex.Attributes[0].Offset)
}

func TestDescriptorTypeClassification(t *testing.T) {
	require.True(t, DescriptorUniformBufferDynamic.IsDynamic())
	require.True(t, DescriptorStorageBufferDynamic.IsBuffer())
	require.False(t, DescriptorSampler.IsBuffer())
	require.False(t, DescriptorSampler.IsImage())
	require.True(t, DescriptorStorageImage.IsImage())
	require.Equal(t, vk.DescriptorTypeInputAttachment, DescriptorInputAttachment.Native())
}
