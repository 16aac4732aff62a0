package testbed

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine"
	"github.com/spaghettifunk/anima-runtime/engine/core"
	"github.com/spaghettifunk/anima-runtime/engine/renderer/vulkan"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	vc          *vulkan.VulkanContext
	pass        *vulkan.VulkanRenderpass
	framebuffer *vulkan.VulkanFramebuffer
	pipeline    *vulkan.VulkanPipeline
	material    *vulkan.VulkanMaterial

	color  core.Handle
	depth  core.Handle
	albedo core.Handle
	lights core.Handle

	elapsed float64
}

const lightCount = 4

// NewTestGame renders an offscreen scene every frame: one render pass with
// a color and a depth target, and one material fed from the uniform ring.
// A pipeline is only built when both SPIR-V paths are set.
func NewTestGame(cfg *engine.ApplicationConfig) *TestGame {
	state := &gameState{width: cfg.Width, height: cfg.Height}
	if state.width == 0 || state.height == 0 {
		state.width, state.height = 1280, 720
	}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: cfg,
			State:             state,
		},
	}
	tg.FnInitialize = func(vc *vulkan.VulkanContext) error {
		return state.initialize(vc, cfg)
	}
	tg.FnUpdate = state.update
	tg.FnRender = state.render
	tg.FnShutdown = state.shutdown
	return tg
}

// SceneDescription is the binding shape the test scene renders with.
func SceneDescription(vertexCode, fragmentCode []byte) *vulkan.PipelineDescription {
	vertex := vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	fragment := vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	desc := &vulkan.PipelineDescription{
		Name: "testbed.scene",
		Vertex: vulkan.VertexLayout{
			Bindings: []vulkan.VertexBinding{{Binding: 0, Stride: 20}},
			Attributes: []vulkan.VertexAttribute{
				{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
				{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 12},
			},
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		State: vulkan.RenderState{
			Raster:       vulkan.RasterState{CullMode: vk.CullModeFlags(vk.CullModeBackBit), FrontFace: vk.FrontFaceCounterClockwise},
			DepthStencil: vulkan.DepthStencilState{DepthTest: true, DepthWrite: true, Compare: vk.CompareOpLess},
			Blend:        vulkan.BlendState{WriteMask: vk.ColorComponentFlags(0xF)},
		},
		Groups: []vulkan.ArgumentGroup{
			{Descriptors: []vulkan.DescriptorDesc{
				{Name: "camera", Type: vulkan.DescriptorUniformBuffer, Binding: 0, Stages: vertex | fragment, Size: 16},
				{Name: "object", Type: vulkan.DescriptorUniformBufferDynamic, Binding: 1, Stages: vertex, Size: 16},
			}},
			{Descriptors: []vulkan.DescriptorDesc{
				{Name: "albedo", Type: vulkan.DescriptorCombinedImageSampler, Binding: 0, Stages: fragment},
				{Name: "lights", Type: vulkan.DescriptorStorageBuffer, Binding: 1, Stages: fragment},
			}},
		},
		PushConstants: []vulkan.PushConstantBlock{{Stage: vk.ShaderStageVertexBit, Size: 64}},
	}
	if vertexCode != nil && fragmentCode != nil {
		desc.Shaders = []vulkan.ShaderBinary{
			{Stage: vk.ShaderStageVertexBit, Entry: "main", Code: vertexCode},
			{Stage: vk.ShaderStageFragmentBit, Entry: "main", Code: fragmentCode},
		}
	}
	return desc
}

func loadShaders(cfg *engine.ApplicationConfig) ([]byte, []byte, error) {
	if cfg.VertexShaderPath == "" || cfg.FragmentShaderPath == "" {
		return nil, nil, nil
	}
	vertex, err := os.ReadFile(cfg.VertexShaderPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading vertex shader")
	}
	fragment, err := os.ReadFile(cfg.FragmentShaderPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading fragment shader")
	}
	return vertex, fragment, nil
}

func (s *gameState) initialize(vc *vulkan.VulkanContext, cfg *engine.ApplicationConfig) error {
	s.vc = vc

	pass, err := vc.RenderPasses.Get(vulkan.RenderPassDesc{
		Colors: []vulkan.AttachmentDesc{{
			Format:        vk.FormatR8g8b8a8Unorm,
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpClear,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialAccess: vulkan.AccessNone,
			FinalAccess:   vulkan.AccessTransferSource,
		}},
		DepthStencil: vulkan.AttachmentDesc{
			Format:        vk.FormatD32Sfloat,
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpClear,
			StoreOp:       vk.AttachmentStoreOpDontCare,
			InitialAccess: vulkan.AccessNone,
			FinalAccess:   vulkan.AccessDepthStencilReadWrite,
		},
		HasDepth: true,
	})
	if err != nil {
		return err
	}
	s.pass = pass

	if s.color, err = vc.CreateImage(vulkan.ImageDesc{
		Name:   "testbed.color",
		Format: vk.FormatR8g8b8a8Unorm,
		Width:  s.width,
		Height: s.height,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	}); err != nil {
		return err
	}
	if s.depth, err = vc.CreateImage(vulkan.ImageDesc{
		Name:   "testbed.depth",
		Format: vk.FormatD32Sfloat,
		Width:  s.width,
		Height: s.height,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		Aspect: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
	}); err != nil {
		return err
	}
	if s.albedo, err = vc.CreateImage(vulkan.ImageDesc{
		Name:   "testbed.albedo",
		Format: vk.FormatR8g8b8a8Unorm,
		Width:  256,
		Height: 256,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit),
		Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	}); err != nil {
		return err
	}
	if s.lights, err = vc.CreateBuffer(vulkan.BufferDesc{
		Name:       "testbed.lights",
		Size:       lightCount * 16,
		Usage:      vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit),
		Properties: vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit),
		Map:        true,
	}); err != nil {
		return err
	}

	if s.framebuffer, err = vc.CreateFramebuffer(pass, s.width, s.height, s.color, s.depth); err != nil {
		return err
	}

	vertex, fragment, err := loadShaders(cfg)
	if err != nil {
		return err
	}
	desc := SceneDescription(vertex, fragment)
	if s.material, err = vc.NewMaterial("testbed", desc); err != nil {
		return err
	}
	if desc.Shaders != nil {
		if s.pipeline, err = vc.Pipelines.Get(desc, pass); err != nil {
			return err
		}
	}

	sampler, err := vc.Samplers.Get(vulkan.SamplerDesc{
		MagFilter:   vk.FilterLinear,
		MinFilter:   vk.FilterLinear,
		MipmapMode:  vk.SamplerMipmapModeLinear,
		AddressMode: vk.SamplerAddressModeRepeat,
	})
	if err != nil {
		return err
	}
	albedo, err := vc.Image(s.albedo)
	if err != nil {
		return err
	}
	lights, err := vc.Buffer(s.lights)
	if err != nil {
		return err
	}
	for i := 0; i < lightCount; i++ {
		putVec4(lights.Mapped[i*16:], float32(i), 4, 0, 1)
	}
	if err := s.material.UpdateDescriptorByName("albedo", vulkan.ImageResource{Image: albedo, Sampler: sampler}); err != nil {
		return err
	}
	if err := s.material.UpdateDescriptorByName("lights", vulkan.BufferResource{Buffer: lights}); err != nil {
		return err
	}
	core.LogInfo("testbed ready: %dx%d offscreen, material %s", s.width, s.height, s.material)
	return nil
}

func (s *gameState) update(deltaTime float64) error {
	s.elapsed += deltaTime
	return nil
}

func (s *gameState) render(vc *vulkan.VulkanContext, cmd *vulkan.VulkanCommandBuffer, deltaTime float64) error {
	t := float32(s.elapsed)

	camera := make([]byte, 16)
	putVec4(camera, t, float32(deltaTime), float32(s.width), float32(s.height))
	if err := s.material.SetUniformData("camera", camera, vc.Uniforms); err != nil {
		return err
	}
	object := make([]byte, 16)
	putVec4(object, float32(math.Sin(float64(t))), float32(math.Cos(float64(t))), 0, 1)
	if err := s.material.SetUniformData("object", object, vc.Uniforms); err != nil {
		return err
	}

	if err := s.material.TransitionImages(cmd); err != nil {
		return err
	}
	clearValues := vulkan.ClearValues{
		Color: [4]float32{0.5 + 0.5*float32(math.Sin(float64(t))), 0.2, 0.3, 1},
		Depth: 1,
	}
	if err := s.pass.Begin(cmd, s.framebuffer, clearValues); err != nil {
		return err
	}
	if s.pipeline != nil {
		if err := s.pipeline.Bind(cmd, vk.PipelineBindPointGraphics); err != nil {
			return err
		}
	}
	if err := s.material.Bind(cmd, vk.PipelineBindPointGraphics); err != nil {
		return err
	}
	return s.pass.End(cmd, s.framebuffer)
}

func (s *gameState) shutdown() error {
	if s.vc == nil {
		return nil
	}
	if s.material != nil {
		s.material.Destroy()
	}
	if s.framebuffer != nil {
		s.vc.DestroyFramebuffer(s.framebuffer)
	}
	var errs error
	for _, h := range []core.Handle{s.color, s.depth, s.albedo} {
		if h.IsZero() {
			continue
		}
		errs = errors.CombineErrors(errs, s.vc.DestroyImage(h))
	}
	if !s.lights.IsZero() {
		errs = errors.CombineErrors(errs, s.vc.DestroyBuffer(s.lights))
	}
	return errs
}

func putVec4(dst []byte, x, y, z, w float32) {
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(x))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(y))
	binary.LittleEndian.PutUint32(dst[8:], math.Float32bits(z))
	binary.LittleEndian.PutUint32(dst[12:], math.Float32bits(w))
}
