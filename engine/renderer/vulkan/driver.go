package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Driver is every native call the runtime makes. NativeDriver forwards to the
// loaded Vulkan device. All handles are goki/vulkan types so values cross the
// boundary unchanged.
type Driver interface {
	CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout)
	CreatePipelineLayout(setLayouts []vk.DescriptorSetLayout, ranges []vk.PushConstantRange) (vk.PipelineLayout, error)
	DestroyPipelineLayout(layout vk.PipelineLayout)

	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error)
	DestroyRenderPass(pass vk.RenderPass)
	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error)
	DestroyFramebuffer(framebuffer vk.Framebuffer)

	CreateShaderModule(code []byte) (vk.ShaderModule, error)
	DestroyShaderModule(module vk.ShaderModule)
	CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error)
	DestroyPipeline(pipeline vk.Pipeline)
	CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error)
	DestroySampler(sampler vk.Sampler)

	CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error)
	DestroyDescriptorPool(pool vk.DescriptorPool)
	// AllocateDescriptorSet reports pool exhaustion as a ResultError carrying
	// ErrorOutOfPoolMemory or ErrorFragmentedPool.
	AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error)
	FreeDescriptorSets(pool vk.DescriptorPool, sets []vk.DescriptorSet) error
	UpdateDescriptorSets(writes []vk.WriteDescriptorSet)

	// CreateBuffer allocates and binds dedicated memory with the given properties.
	CreateBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error)
	DestroyBuffer(buffer vk.Buffer, memory vk.DeviceMemory)
	MapMemory(memory vk.DeviceMemory, size uint64) ([]byte, error)
	UnmapMemory(memory vk.DeviceMemory)
	CreateImage(info *vk.ImageCreateInfo, properties vk.MemoryPropertyFlags) (vk.Image, vk.DeviceMemory, error)
	DestroyImage(image vk.Image, memory vk.DeviceMemory)
	CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error)
	DestroyImageView(view vk.ImageView)

	CreateFence(signaled bool) (vk.Fence, error)
	DestroyFence(fence vk.Fence)
	// WaitForFence returns the raw result so callers can tell Timeout apart.
	WaitForFence(fence vk.Fence, timeoutNs uint64) vk.Result
	ResetFence(fence vk.Fence) error

	AllocateCommandBuffer(primary bool) (vk.CommandBuffer, error)
	FreeCommandBuffer(cmd vk.CommandBuffer)
	BeginCommandBuffer(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error
	EndCommandBuffer(cmd vk.CommandBuffer) error
	ResetCommandBuffer(cmd vk.CommandBuffer) error
	QueueSubmit(cmd vk.CommandBuffer, fence vk.Fence) error
	DeviceWaitIdle() error

	CmdPipelineBarrier(cmd vk.CommandBuffer, srcStages, dstStages vk.PipelineStageFlags, buffers []vk.BufferMemoryBarrier, images []vk.ImageMemoryBarrier)
	CmdBindDescriptorSets(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet, dynamicOffsets []uint32)
	CmdBeginRenderPass(cmd vk.CommandBuffer, info *vk.RenderPassBeginInfo)
	CmdEndRenderPass(cmd vk.CommandBuffer)
	CmdBindPipeline(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline)

	MinUniformBufferOffsetAlignment() uint64
}
