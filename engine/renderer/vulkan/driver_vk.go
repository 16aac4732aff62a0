package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// NativeDriver issues every Driver call against a live VulkanDevice.
type NativeDriver struct {
	Device *VulkanDevice

	locks *VulkanLockPool
}

func newNativeDriver(device *VulkanDevice) *NativeDriver {
	return &NativeDriver{Device: device, locks: NewVulkanLockPool()}
}

var _ Driver = (*NativeDriver)(nil)

func (d *NativeDriver) dev() vk.Device {
	return d.Device.LogicalDevice
}

func (d *NativeDriver) CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	err := checkResult("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.dev(), &createInfo, d.Device.Allocator, &layout))
	return layout, err
}

func (d *NativeDriver) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.dev(), layout, d.Device.Allocator)
}

func (d *NativeDriver) CreatePipelineLayout(setLayouts []vk.DescriptorSetLayout, ranges []vk.PushConstantRange) (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	err := checkResult("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.dev(), &createInfo, d.Device.Allocator, &layout))
	return layout, err
}

func (d *NativeDriver) DestroyPipelineLayout(layout vk.PipelineLayout) {
	vk.DestroyPipelineLayout(d.dev(), layout, d.Device.Allocator)
}

func (d *NativeDriver) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var pass vk.RenderPass
	err := checkResult("vkCreateRenderPass", vk.CreateRenderPass(d.dev(), info, d.Device.Allocator, &pass))
	return pass, err
}

func (d *NativeDriver) DestroyRenderPass(pass vk.RenderPass) {
	vk.DestroyRenderPass(d.dev(), pass, d.Device.Allocator)
}

func (d *NativeDriver) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var framebuffer vk.Framebuffer
	err := checkResult("vkCreateFramebuffer", vk.CreateFramebuffer(d.dev(), info, d.Device.Allocator, &framebuffer))
	return framebuffer, err
}

func (d *NativeDriver) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	vk.DestroyFramebuffer(d.dev(), framebuffer, d.Device.Allocator)
}

func (d *NativeDriver) CreateShaderModule(code []byte) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    codeWords(code),
	}
	var module vk.ShaderModule
	err := checkResult("vkCreateShaderModule", vk.CreateShaderModule(d.dev(), &createInfo, d.Device.Allocator, &module))
	return module, err
}

// codeWords reinterprets SPIR-V bytes as the word slice the loader expects.
func codeWords(code []byte) []uint32 {
	if len(code) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4)
}

func (d *NativeDriver) DestroyShaderModule(module vk.ShaderModule) {
	vk.DestroyShaderModule(d.dev(), module, d.Device.Allocator)
}

func (d *NativeDriver) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	pipelines := make([]vk.Pipeline, 1)
	err := checkResult("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(d.dev(), vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{*info}, d.Device.Allocator, pipelines))
	return pipelines[0], err
}

func (d *NativeDriver) DestroyPipeline(pipeline vk.Pipeline) {
	vk.DestroyPipeline(d.dev(), pipeline, d.Device.Allocator)
}

func (d *NativeDriver) CreateSampler(info *vk.SamplerCreateInfo) (vk.Sampler, error) {
	var sampler vk.Sampler
	err := checkResult("vkCreateSampler", vk.CreateSampler(d.dev(), info, d.Device.Allocator, &sampler))
	return sampler, err
}

func (d *NativeDriver) DestroySampler(sampler vk.Sampler) {
	vk.DestroySampler(d.dev(), sampler, d.Device.Allocator)
}

func (d *NativeDriver) CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (vk.DescriptorPool, error) {
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	err := checkResult("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.dev(), &createInfo, d.Device.Allocator, &pool))
	return pool, err
}

func (d *NativeDriver) DestroyDescriptorPool(pool vk.DescriptorPool) {
	vk.DestroyDescriptorPool(d.dev(), pool, d.Device.Allocator)
}

func (d *NativeDriver) AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	err := d.locks.SafeCall(DescriptorPoolManagement, func() error {
		return checkResult("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(d.dev(), &allocInfo, &set))
	})
	return set, err
}

func (d *NativeDriver) FreeDescriptorSets(pool vk.DescriptorPool, sets []vk.DescriptorSet) error {
	if len(sets) == 0 {
		return nil
	}
	return d.locks.SafeCall(DescriptorPoolManagement, func() error {
		return checkResult("vkFreeDescriptorSets", vk.FreeDescriptorSets(d.dev(), pool, uint32(len(sets)), &sets[0]))
	})
}

func (d *NativeDriver) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	vk.UpdateDescriptorSets(d.dev(), uint32(len(writes)), writes, 0, nil)
}

func (d *NativeDriver) CreateBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := checkResult("vkCreateBuffer", vk.CreateBuffer(d.dev(), &bufferInfo, d.Device.Allocator, &buffer)); err != nil {
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.dev(), buffer, &memReqs)
	memReqs.Deref()

	memory, err := d.allocate(memReqs, properties)
	if err != nil {
		vk.DestroyBuffer(d.dev(), buffer, d.Device.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}
	if err := checkResult("vkBindBufferMemory", vk.BindBufferMemory(d.dev(), buffer, memory, 0)); err != nil {
		vk.FreeMemory(d.dev(), memory, d.Device.Allocator)
		vk.DestroyBuffer(d.dev(), buffer, d.Device.Allocator)
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}
	return buffer, memory, nil
}

func (d *NativeDriver) allocate(memReqs vk.MemoryRequirements, properties vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	memTypeIndex, err := d.Device.findMemoryIndex(memReqs.MemoryTypeBits, properties)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memTypeIndex,
	}
	var memory vk.DeviceMemory
	err = checkResult("vkAllocateMemory", vk.AllocateMemory(d.dev(), &allocInfo, d.Device.Allocator, &memory))
	return memory, err
}

func (d *NativeDriver) DestroyBuffer(buffer vk.Buffer, memory vk.DeviceMemory) {
	if buffer != vk.NullBuffer {
		vk.DestroyBuffer(d.dev(), buffer, d.Device.Allocator)
	}
	if memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.dev(), memory, d.Device.Allocator)
	}
}

func (d *NativeDriver) MapMemory(memory vk.DeviceMemory, size uint64) ([]byte, error) {
	var data unsafe.Pointer
	if err := checkResult("vkMapMemory", vk.MapMemory(d.dev(), memory, 0, vk.DeviceSize(size), 0, &data)); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(data), size), nil
}

func (d *NativeDriver) UnmapMemory(memory vk.DeviceMemory) {
	vk.UnmapMemory(d.dev(), memory)
}

func (d *NativeDriver) CreateImage(info *vk.ImageCreateInfo, properties vk.MemoryPropertyFlags) (vk.Image, vk.DeviceMemory, error) {
	var image vk.Image
	if err := checkResult("vkCreateImage", vk.CreateImage(d.dev(), info, d.Device.Allocator, &image)); err != nil {
		return vk.NullImage, vk.NullDeviceMemory, err
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.dev(), image, &memReqs)
	memReqs.Deref()

	memory, err := d.allocate(memReqs, properties)
	if err != nil {
		vk.DestroyImage(d.dev(), image, d.Device.Allocator)
		return vk.NullImage, vk.NullDeviceMemory, err
	}
	if err := checkResult("vkBindImageMemory", vk.BindImageMemory(d.dev(), image, memory, 0)); err != nil {
		vk.FreeMemory(d.dev(), memory, d.Device.Allocator)
		vk.DestroyImage(d.dev(), image, d.Device.Allocator)
		return vk.NullImage, vk.NullDeviceMemory, err
	}
	return image, memory, nil
}

func (d *NativeDriver) DestroyImage(image vk.Image, memory vk.DeviceMemory) {
	if image != vk.NullImage {
		vk.DestroyImage(d.dev(), image, d.Device.Allocator)
	}
	if memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.dev(), memory, d.Device.Allocator)
	}
}

func (d *NativeDriver) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, error) {
	var view vk.ImageView
	err := checkResult("vkCreateImageView", vk.CreateImageView(d.dev(), info, d.Device.Allocator, &view))
	return view, err
}

func (d *NativeDriver) DestroyImageView(view vk.ImageView) {
	vk.DestroyImageView(d.dev(), view, d.Device.Allocator)
}

func (d *NativeDriver) CreateFence(signaled bool) (vk.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	err := checkResult("vkCreateFence", vk.CreateFence(d.dev(), &fenceCreateInfo, d.Device.Allocator, &fence))
	return fence, err
}

func (d *NativeDriver) DestroyFence(fence vk.Fence) {
	vk.DestroyFence(d.dev(), fence, d.Device.Allocator)
}

func (d *NativeDriver) WaitForFence(fence vk.Fence, timeoutNs uint64) vk.Result {
	return vk.WaitForFences(d.dev(), 1, []vk.Fence{fence}, vk.True, timeoutNs)
}

func (d *NativeDriver) ResetFence(fence vk.Fence) error {
	return checkResult("vkResetFences", vk.ResetFences(d.dev(), 1, []vk.Fence{fence}))
}

func (d *NativeDriver) AllocateCommandBuffer(primary bool) (vk.CommandBuffer, error) {
	level := vk.CommandBufferLevelSecondary
	if primary {
		level = vk.CommandBufferLevelPrimary
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.Device.GraphicsCommandPool,
		CommandBufferCount: 1,
		Level:              level,
	}
	buffers := make([]vk.CommandBuffer, 1)
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		return checkResult("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.dev(), &allocateInfo, buffers))
	})
	return buffers[0], err
}

func (d *NativeDriver) FreeCommandBuffer(cmd vk.CommandBuffer) {
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.dev(), d.Device.GraphicsCommandPool, 1, []vk.CommandBuffer{cmd})
		return nil
	})
}

func (d *NativeDriver) BeginCommandBuffer(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}
	return checkResult("vkBeginCommandBuffer", vk.BeginCommandBuffer(cmd, &beginInfo))
}

func (d *NativeDriver) EndCommandBuffer(cmd vk.CommandBuffer) error {
	return checkResult("vkEndCommandBuffer", vk.EndCommandBuffer(cmd))
}

func (d *NativeDriver) ResetCommandBuffer(cmd vk.CommandBuffer) error {
	return checkResult("vkResetCommandBuffer", vk.ResetCommandBuffer(cmd, 0))
}

func (d *NativeDriver) QueueSubmit(cmd vk.CommandBuffer, fence vk.Fence) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	return d.locks.SafeCall(QueueManagement, func() error {
		return checkResult("vkQueueSubmit", vk.QueueSubmit(d.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
}

func (d *NativeDriver) DeviceWaitIdle() error {
	return d.locks.SafeCall(QueueManagement, func() error {
		return checkResult("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.dev()))
	})
}

func (d *NativeDriver) CmdPipelineBarrier(cmd vk.CommandBuffer, srcStages, dstStages vk.PipelineStageFlags, buffers []vk.BufferMemoryBarrier, images []vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(cmd, srcStages, dstStages, 0, 0, nil, uint32(len(buffers)), buffers, uint32(len(images)), images)
}

func (d *NativeDriver) CmdBindDescriptorSets(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, layout vk.PipelineLayout, firstSet uint32, sets []vk.DescriptorSet, dynamicOffsets []uint32) {
	vk.CmdBindDescriptorSets(cmd, bindPoint, layout, firstSet, uint32(len(sets)), sets, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (d *NativeDriver) CmdBeginRenderPass(cmd vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	vk.CmdBeginRenderPass(cmd, info, vk.SubpassContentsInline)
}

func (d *NativeDriver) CmdEndRenderPass(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

func (d *NativeDriver) CmdBindPipeline(cmd vk.CommandBuffer, bindPoint vk.PipelineBindPoint, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(cmd, bindPoint, pipeline)
}

func (d *NativeDriver) MinUniformBufferOffsetAlignment() uint64 {
	return uint64(d.Device.Properties.Limits.MinUniformBufferOffsetAlignment)
}

// Destroy tears the device down. Every runtime object must be gone first.
func (d *NativeDriver) Destroy() {
	d.Device.Destroy()
}
