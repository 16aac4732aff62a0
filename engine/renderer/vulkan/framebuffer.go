package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Width       uint32
	Height      uint32
	Attachments []*VulkanImage
	Renderpass  *VulkanRenderpass
}

// NewVulkanFramebuffer binds images to the attachments of renderpass, in the
// pass's attachment order (colors then depth).
func NewVulkanFramebuffer(driver Driver, renderpass *VulkanRenderpass, width, height uint32, attachments []*VulkanImage) (*VulkanFramebuffer, error) {
	if len(attachments) != renderpass.Desc.attachmentCount() {
		return nil, core.IntegrationError(core.ErrInvalidDescription, "framebuffer has %d attachments, render pass expects %d", len(attachments), renderpass.Desc.attachmentCount())
	}
	outFramebuffer := &VulkanFramebuffer{
		Width:       width,
		Height:      height,
		Attachments: append([]*VulkanImage(nil), attachments...),
		Renderpass:  renderpass,
	}

	views := make([]vk.ImageView, len(attachments))
	for i, image := range attachments {
		views[i] = image.View
	}

	// Creation info
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	handle, err := driver.CreateFramebuffer(&framebufferCreateInfo)
	if err != nil {
		core.LogError("failed to create framebuffer: %v", err)
		return nil, err
	}
	outFramebuffer.Handle = handle
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(driver Driver) {
	if vfb.Handle != vk.NullFramebuffer {
		driver.DestroyFramebuffer(vfb.Handle)
	}
	vfb.Handle = vk.NullFramebuffer
	vfb.Attachments = nil
	vfb.Renderpass = nil
}
