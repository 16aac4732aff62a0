package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

/**
 * @brief Holds a Vulkan pipeline and the layout it was built with.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The shared material layout. Owned by the LayoutCache. */
	Layout *MaterialLayout
	Name   string
	/** @brief Hash of the description the pipeline was built from. */
	StateHash uint64
	/** @brief Compatibility hash of the render pass it was built against. */
	CompatHash uint64
}

// pipelineKey identifies a pipeline by its description and the render pass
// compatibility class it runs in.
type pipelineKey struct {
	desc      PipelineDescription
	stateHash uint64
	pass      *VulkanRenderpass
	layout    *MaterialLayout
}

func (k *pipelineKey) Hash() uint64 {
	return newHasher().u64(k.stateHash).u64(k.pass.CompatHash).sum()
}

func createPipeline(driver Driver, key *pipelineKey) (*VulkanPipeline, error) {
	desc := &key.desc
	if len(desc.Shaders) == 0 {
		return nil, core.IntegrationError(core.ErrInvalidDescription, "pipeline %s has no shaders", desc.Name)
	}

	// Shader modules only need to live until the pipeline exists.
	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(desc.Shaders))
	modules := make([]vk.ShaderModule, 0, len(desc.Shaders))
	defer func() {
		for _, module := range modules {
			driver.DestroyShaderModule(module)
		}
	}()
	for _, shader := range desc.Shaders {
		if len(shader.Code) == 0 || len(shader.Code)%4 != 0 {
			return nil, core.IntegrationError(core.ErrInvalidDescription, "pipeline %s: stage %#x bytecode size %d is not a non-zero multiple of 4",
				desc.Name, uint32(shader.Stage), len(shader.Code))
		}
		module, err := driver.CreateShaderModule(shader.Code)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline %s: shader module", desc.Name)
		}
		modules = append(modules, module)
		entry := shader.Entry
		if entry == "" {
			entry = "main"
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  shader.Stage,
			Module: module,
			PName:  VulkanSafeString(entry),
		})
	}

	// Viewport and scissor are dynamic; the counts still have to be declared.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{{Width: 1, Height: 1, MaxDepth: 1}},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{{Extent: vk.Extent2D{Width: 1, Height: 1}}},
	}

	// Rasterizer
	raster := desc.State.Raster
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                raster.CullMode,
		FrontFace:               raster.FrontFace,
		DepthBiasEnable:         vk.False,
	}
	if raster.Wireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}

	// Multisampling.
	samples := vk.SampleCount1Bit
	if n := key.pass.Desc.attachmentCount(); n > 0 && key.pass.Desc.attachment(0).Samples != 0 {
		samples = key.pass.Desc.attachment(0).Samples
	}
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  samples,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	ds := desc.State.DepthStencil
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vkBool(ds.DepthTest),
		DepthWriteEnable:  vkBool(ds.DepthWrite),
		DepthCompareOp:    ds.Compare,
		StencilTestEnable: vkBool(ds.StencilTest),
	}

	blend := desc.State.Blend
	writeMask := blend.WriteMask
	if writeMask == 0 {
		writeMask = vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	}
	colorBlendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(key.pass.Desc.Colors))
	for i := range colorBlendAttachments {
		colorBlendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vkBool(blend.Enable),
			SrcColorBlendFactor: blend.SrcColor,
			DstColorBlendFactor: blend.DstColor,
			ColorBlendOp:        blend.ColorOp,
			SrcAlphaBlendFactor: blend.SrcAlpha,
			DstAlphaBlendFactor: blend.DstAlpha,
			AlphaBlendOp:        blend.AlphaOp,
			ColorWriteMask:      writeMask,
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(colorBlendAttachments)),
		PAttachments:    colorBlendAttachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateLineWidth,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	bindings := make([]vk.VertexInputBindingDescription, len(desc.Vertex.Bindings))
	for i, b := range desc.Vertex.Bindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
		if b.PerInstance {
			bindings[i].InputRate = vk.VertexInputRateInstance
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.Vertex.Attributes))
	for i, a := range desc.Vertex.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   a.Format,
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               desc.Vertex.Topology,
		PrimitiveRestartEnable: vk.False,
	}

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		PTessellationState:  nil,
		Layout:              key.layout.PipelineLayout,
		RenderPass:          key.pass.Handle,
		Subpass:             key.pass.Desc.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	handle, err := driver.CreateGraphicsPipeline(&pipelineCreateInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", desc.Name)
	}

	core.LogDebug("Graphics pipeline %s created!", desc.Name)
	return &VulkanPipeline{
		Handle:     handle,
		Layout:     key.layout,
		Name:       desc.Name,
		StateHash:  key.stateHash,
		CompatHash: key.pass.CompatHash,
	}, nil
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func (pipeline *VulkanPipeline) destroy(driver Driver) {
	if pipeline.Handle != vk.NullPipeline {
		driver.DestroyPipeline(pipeline.Handle)
		pipeline.Handle = vk.NullPipeline
	}
}

func (pipeline *VulkanPipeline) Bind(commandBuffer *VulkanCommandBuffer, bindPoint vk.PipelineBindPoint) error {
	if !commandBuffer.IsRecording() {
		return errors.AssertionFailedf("pipeline %s bound to a command buffer that is not recording", pipeline.Name)
	}
	commandBuffer.driver.CmdBindPipeline(commandBuffer.Handle, bindPoint, pipeline.Handle)
	return nil
}

// PipelineCache holds executable pipelines one level below the layouts:
// descriptions sharing a binding shape share a MaterialLayout but get their
// own pipeline per render pass compatibility class.
type PipelineCache struct {
	driver  Driver
	layouts *LayoutCache
	cache   *ObjectCache[Driver, *pipelineKey, *VulkanPipeline]
}

func NewPipelineCache(driver Driver, layouts *LayoutCache) *PipelineCache {
	return &PipelineCache{
		driver:  driver,
		layouts: layouts,
		cache: NewObjectCache("pipeline", func(d Driver, key *pipelineKey) (*VulkanPipeline, error) {
			// Keep a private copy so later edits to the caller's description cannot alias the cache.
			key.desc = key.desc.Clone()
			return createPipeline(d, key)
		}, func(d Driver, p *VulkanPipeline) {
			p.destroy(d)
		}),
	}
}

// Get returns the pipeline for desc inside pass, building the layout and the
// pipeline on first use.
func (c *PipelineCache) Get(desc *PipelineDescription, pass *VulkanRenderpass) (*VulkanPipeline, error) {
	layout, err := c.layouts.Get(desc)
	if err != nil {
		return nil, err
	}
	key := &pipelineKey{
		desc:      *desc,
		stateHash: desc.StateHash(),
		pass:      pass,
		layout:    layout,
	}
	pipeline, _, err := c.cache.GetObject(c.driver, key)
	return pipeline, err
}

func (c *PipelineCache) Stats() CacheStats {
	return c.cache.Stats()
}

func (c *PipelineCache) Destroy() {
	c.cache.Cleanup(c.driver)
}
