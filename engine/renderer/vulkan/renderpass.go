package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// AttachmentDesc describes one attachment. InitialAccess is the state the
// image must be in when the pass begins (AccessNone discards its contents);
// FinalAccess is the state it is left in when the pass ends.
type AttachmentDesc struct {
	Format        vk.Format
	Samples       vk.SampleCountFlagBits
	LoadOp        vk.AttachmentLoadOp
	StoreOp       vk.AttachmentStoreOp
	InitialAccess AccessType
	FinalAccess   AccessType
}

type RenderPassDesc struct {
	Colors       []AttachmentDesc
	DepthStencil AttachmentDesc
	HasDepth     bool
	// Subpass is the subpass pipelines built against this pass target.
	Subpass uint32
}

func (d RenderPassDesc) attachmentCount() int {
	if d.HasDepth {
		return len(d.Colors) + 1
	}
	return len(d.Colors)
}

func (d RenderPassDesc) attachment(i int) AttachmentDesc {
	if i < len(d.Colors) {
		return d.Colors[i]
	}
	return d.DepthStencil
}

func (d RenderPassDesc) isDepth(i int) bool {
	return d.HasDepth && i == len(d.Colors)
}

// Hash covers every field, load/store ops and access states included.
func (d RenderPassDesc) Hash() uint64 {
	h := newHasher()
	h.u32(uint32(d.attachmentCount())).boolean(d.HasDepth).u32(d.Subpass)
	for i := 0; i < d.attachmentCount(); i++ {
		a := d.attachment(i)
		h.u32(uint32(a.Format)).u32(uint32(a.Samples)).
			u32(uint32(a.LoadOp)).u32(uint32(a.StoreOp)).
			u32(uint32(a.InitialAccess)).u32(uint32(a.FinalAccess))
	}
	return h.sum()
}

// CompatHash covers only what render pass compatibility depends on: the
// attachment formats, sample counts, depth presence and the subpass index.
func (d RenderPassDesc) CompatHash() uint64 {
	h := newHasher()
	h.u32(uint32(len(d.Colors))).boolean(d.HasDepth).u32(d.Subpass)
	for i := 0; i < d.attachmentCount(); i++ {
		a := d.attachment(i)
		h.u32(uint32(a.Format)).u32(uint32(a.Samples))
	}
	return h.sum()
}

type VulkanRenderpass struct {
	Handle     vk.RenderPass
	Desc       RenderPassDesc
	Hash       uint64
	CompatHash uint64
}

func createRenderpass(driver Driver, desc RenderPassDesc) (*VulkanRenderpass, error) {
	if len(desc.Colors) == 0 && !desc.HasDepth {
		return nil, core.IntegrationError(core.ErrInvalidDescription, "render pass without attachments")
	}
	if desc.Subpass != 0 {
		return nil, core.IntegrationError(core.ErrInvalidDescription, "render pass declares subpass %d but only single subpass passes are built", desc.Subpass)
	}

	count := desc.attachmentCount()
	attachmentDescriptions := make([]vk.AttachmentDescription, count)
	colorReferences := make([]vk.AttachmentReference, 0, len(desc.Colors))
	for i := 0; i < count; i++ {
		a := desc.attachment(i)
		if !a.InitialAccess.imageCapable() || a.FinalAccess == AccessNone || !a.FinalAccess.imageCapable() {
			return nil, core.IntegrationError(core.ErrInvalidDescription, "attachment %d: %s -> %s has no valid image layout", i, a.InitialAccess, a.FinalAccess)
		}
		samples := a.Samples
		if samples == 0 {
			samples = vk.SampleCount1Bit
		}
		attachmentDescriptions[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        samples,
			LoadOp:         a.LoadOp,
			StoreOp:        a.StoreOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  a.InitialAccess.Layout(),
			FinalLayout:    a.FinalAccess.Layout(),
		}
		if desc.isDepth(i) {
			attachmentDescriptions[i].StencilLoadOp = a.LoadOp
			attachmentDescriptions[i].StencilStoreOp = a.StoreOp
		} else {
			colorReferences = append(colorReferences, vk.AttachmentReference{
				Attachment: uint32(i),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			})
		}
	}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}
	if desc.HasDepth {
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(desc.Colors)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(count),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	handle, err := driver.CreateRenderPass(&renderpassCreateInfo)
	if err != nil {
		return nil, err
	}
	return &VulkanRenderpass{
		Handle:     handle,
		Desc:       desc,
		Hash:       desc.Hash(),
		CompatHash: desc.CompatHash(),
	}, nil
}

func (vr *VulkanRenderpass) destroy(driver Driver) {
	if vr.Handle != vk.NullRenderPass {
		driver.DestroyRenderPass(vr.Handle)
		vr.Handle = vk.NullRenderPass
	}
}

// CompatibleWith reports whether pipelines built for other may run inside vr.
func (vr *VulkanRenderpass) CompatibleWith(other *VulkanRenderpass) bool {
	return vr.CompatHash == other.CompatHash
}

// attachmentOutputAccess is the state attachments hold while the pass runs.
func (d RenderPassDesc) attachmentOutputAccess(i int) AccessType {
	if d.isDepth(i) {
		return AccessDepthStencilReadWrite
	}
	return AccessColorAttachmentReadWrite
}

// Begin records the pass start. Attachments not already in their initial
// state are transitioned first; while the pass runs they are tracked as
// attachment outputs.
func (vr *VulkanRenderpass) Begin(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer, clear ClearValues) error {
	if commandBuffer.State != COMMAND_BUFFER_STATE_RECORDING {
		return errors.AssertionFailedf("render pass begun on a command buffer in state %d", commandBuffer.State)
	}
	if framebuffer.Renderpass.CompatHash != vr.CompatHash {
		return errors.AssertionFailedf("framebuffer was created for an incompatible render pass")
	}

	for i, image := range framebuffer.Attachments {
		initial := vr.Desc.attachment(i).InitialAccess
		if initial != AccessNone {
			if _, err := commandBuffer.TransitionImage(image, initial, 0, 0); err != nil {
				return err
			}
		}
	}

	clearValues := make([]vk.ClearValue, len(framebuffer.Attachments))
	for i := range framebuffer.Attachments {
		if vr.Desc.isDepth(i) {
			clearValues[i].SetDepthStencil(clear.Depth, clear.Stencil)
		} else {
			clearValues[i].SetColor(clear.Color[:])
		}
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{
				Width:  framebuffer.Width,
				Height: framebuffer.Height,
			},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	commandBuffer.driver.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS

	for i, image := range framebuffer.Attachments {
		image.setAccess(vr.Desc.attachmentOutputAccess(i))
	}
	return nil
}

// End records the pass end; each attachment is then tracked in its final state.
func (vr *VulkanRenderpass) End(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer) error {
	if commandBuffer.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.AssertionFailedf("render pass ended outside a render pass")
	}
	commandBuffer.driver.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING

	for i, image := range framebuffer.Attachments {
		image.setAccess(vr.Desc.attachment(i).FinalAccess)
	}
	return nil
}

type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// RenderPassCache stores passes by exact hash and indexes them by
// compatibility hash.
type RenderPassCache struct {
	driver Driver
	cache  *ObjectCache[Driver, RenderPassDesc, *VulkanRenderpass]
	compat map[uint64]*VulkanRenderpass
}

func NewRenderPassCache(driver Driver) *RenderPassCache {
	return &RenderPassCache{
		driver: driver,
		cache: NewObjectCache("renderpass", createRenderpass, func(d Driver, rp *VulkanRenderpass) {
			rp.destroy(d)
		}),
		compat: map[uint64]*VulkanRenderpass{},
	}
}

func (c *RenderPassCache) Get(desc RenderPassDesc) (*VulkanRenderpass, error) {
	desc.Colors = append([]AttachmentDesc(nil), desc.Colors...)
	pass, _, err := c.cache.GetObject(c.driver, desc)
	if err != nil {
		return nil, err
	}
	if _, ok := c.compat[pass.CompatHash]; !ok {
		c.compat[pass.CompatHash] = pass
	}
	return pass, nil
}

// Compatible returns some cached pass with the given compatibility hash.
func (c *RenderPassCache) Compatible(compatHash uint64) (*VulkanRenderpass, bool) {
	pass, ok := c.compat[compatHash]
	return pass, ok
}

func (c *RenderPassCache) Stats() CacheStats {
	return c.cache.Stats()
}

func (c *RenderPassCache) Destroy() {
	c.cache.Cleanup(c.driver)
	c.compat = map[uint64]*VulkanRenderpass{}
}
