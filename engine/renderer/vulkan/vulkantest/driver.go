// Package vulkantest provides a recording vulkan.Driver for tests that need
// a VulkanContext without a GPU.
package vulkantest

import (
	"sort"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/renderer/vulkan"
)

// Driver hands out unique handles, counts every call and tracks live
// objects per kind. It is not safe for concurrent use.
type Driver struct {
	Calls map[string]int

	// WaitResult is returned by every fence wait.
	WaitResult vk.Result
	// Alignment is reported as minUniformBufferOffsetAlignment.
	Alignment uint64
	// Barriers counts recorded pipeline barriers.
	Barriers int

	handles int
	live    map[string]int
	memory  map[vk.DeviceMemory][]byte
}

var _ vulkan.Driver = (*Driver)(nil)

func New() *Driver {
	return &Driver{
		Calls:      map[string]int{},
		WaitResult: vk.Success,
		Alignment:  256,
		live:       map[string]int{},
		memory:     map[vk.DeviceMemory][]byte{},
	}
}

// handleSpace backs fake handles. goki/vulkan handles are not-in-heap
// pointer types, so they must never point into the Go heap: reflect (and so
// testify and fmt) panics on such values. A global array lives outside it.
var handleSpace [1 << 20]byte

func (d *Driver) next() unsafe.Pointer {
	d.handles++
	return unsafe.Pointer(&handleSpace[d.handles%len(handleSpace)])
}

func (d *Driver) create(kind string) unsafe.Pointer {
	d.Calls["Create"+kind]++
	d.live[kind]++
	return d.next()
}

func (d *Driver) destroy(kind string) {
	d.Calls["Destroy"+kind]++
	d.live[kind]--
}

// Leaks lists every kind with objects still alive, sorted by name.
func (d *Driver) Leaks() []string {
	var out []string
	for kind, n := range d.live {
		if n != 0 {
			out = append(out, kind)
		}
	}
	sort.Strings(out)
	return out
}

// Live returns how many objects of kind exist, for example "Buffer".
func (d *Driver) Live(kind string) int {
	return d.live[kind]
}

func (d *Driver) CreateDescriptorSetLayout([]vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	return vk.DescriptorSetLayout(d.create("DescriptorSetLayout")), nil
}

func (d *Driver) DestroyDescriptorSetLayout(vk.DescriptorSetLayout) {
	d.destroy("DescriptorSetLayout")
}

func (d *Driver) CreatePipelineLayout([]vk.DescriptorSetLayout, []vk.PushConstantRange) (vk.PipelineLayout, error) {
	return vk.PipelineLayout(d.create("PipelineLayout")), nil
}

func (d *Driver) DestroyPipelineLayout(vk.PipelineLayout) {
	d.destroy("PipelineLayout")
}

func (d *Driver) CreateRenderPass(*vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	return vk.RenderPass(d.create("RenderPass")), nil
}

func (d *Driver) DestroyRenderPass(vk.RenderPass) {
	d.destroy("RenderPass")
}

func (d *Driver) CreateFramebuffer(*vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	return vk.Framebuffer(d.create("Framebuffer")), nil
}

func (d *Driver) DestroyFramebuffer(vk.Framebuffer) {
	d.destroy("Framebuffer")
}

func (d *Driver) CreateShaderModule([]byte) (vk.ShaderModule, error) {
	return vk.ShaderModule(d.create("ShaderModule")), nil
}

func (d *Driver) DestroyShaderModule(vk.ShaderModule) {
	d.destroy("ShaderModule")
}

func (d *Driver) CreateGraphicsPipeline(*vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	return vk.Pipeline(d.create("Pipeline")), nil
}

func (d *Driver) DestroyPipeline(vk.Pipeline) {
	d.destroy("Pipeline")
}

func (d *Driver) CreateSampler(*vk.SamplerCreateInfo) (vk.Sampler, error) {
	return vk.Sampler(d.create("Sampler")), nil
}

func (d *Driver) DestroySampler(vk.Sampler) {
	d.destroy("Sampler")
}

func (d *Driver) CreateDescriptorPool(uint32, []vk.DescriptorPoolSize) (vk.DescriptorPool, error) {
	return vk.DescriptorPool(d.create("DescriptorPool")), nil
}

// DestroyDescriptorPool also ends every set still allocated from the pool.
// With a single pool that is every live set.
func (d *Driver) DestroyDescriptorPool(vk.DescriptorPool) {
	d.destroy("DescriptorPool")
	if d.live["DescriptorPool"] == 0 {
		d.live["DescriptorSet"] = 0
	}
}

func (d *Driver) AllocateDescriptorSet(vk.DescriptorPool, vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	return vk.DescriptorSet(d.create("DescriptorSet")), nil
}

func (d *Driver) FreeDescriptorSets(_ vk.DescriptorPool, sets []vk.DescriptorSet) error {
	d.Calls["FreeDescriptorSets"]++
	d.live["DescriptorSet"] -= len(sets)
	return nil
}

func (d *Driver) UpdateDescriptorSets([]vk.WriteDescriptorSet) {
	d.Calls["UpdateDescriptorSets"]++
}

func (d *Driver) CreateBuffer(uint64, vk.BufferUsageFlags, vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	return vk.Buffer(d.create("Buffer")), vk.DeviceMemory(d.next()), nil
}

func (d *Driver) DestroyBuffer(vk.Buffer, vk.DeviceMemory) {
	d.destroy("Buffer")
}

func (d *Driver) MapMemory(memory vk.DeviceMemory, size uint64) ([]byte, error) {
	d.Calls["MapMemory"]++
	data := make([]byte, size)
	d.memory[memory] = data
	return data, nil
}

func (d *Driver) UnmapMemory(memory vk.DeviceMemory) {
	d.Calls["UnmapMemory"]++
	delete(d.memory, memory)
}

func (d *Driver) CreateImage(*vk.ImageCreateInfo, vk.MemoryPropertyFlags) (vk.Image, vk.DeviceMemory, error) {
	return vk.Image(d.create("Image")), vk.DeviceMemory(d.next()), nil
}

func (d *Driver) DestroyImage(vk.Image, vk.DeviceMemory) {
	d.destroy("Image")
}

func (d *Driver) CreateImageView(*vk.ImageViewCreateInfo) (vk.ImageView, error) {
	return vk.ImageView(d.create("ImageView")), nil
}

func (d *Driver) DestroyImageView(vk.ImageView) {
	d.destroy("ImageView")
}

func (d *Driver) CreateFence(bool) (vk.Fence, error) {
	return vk.Fence(d.create("Fence")), nil
}

func (d *Driver) DestroyFence(vk.Fence) {
	d.destroy("Fence")
}

func (d *Driver) WaitForFence(vk.Fence, uint64) vk.Result {
	d.Calls["WaitForFence"]++
	return d.WaitResult
}

func (d *Driver) ResetFence(vk.Fence) error {
	d.Calls["ResetFence"]++
	return nil
}

func (d *Driver) AllocateCommandBuffer(bool) (vk.CommandBuffer, error) {
	return vk.CommandBuffer(d.create("CommandBuffer")), nil
}

func (d *Driver) FreeCommandBuffer(vk.CommandBuffer) {
	d.destroy("CommandBuffer")
}

func (d *Driver) BeginCommandBuffer(vk.CommandBuffer, vk.CommandBufferUsageFlags) error {
	d.Calls["BeginCommandBuffer"]++
	return nil
}

func (d *Driver) EndCommandBuffer(vk.CommandBuffer) error {
	d.Calls["EndCommandBuffer"]++
	return nil
}

func (d *Driver) ResetCommandBuffer(vk.CommandBuffer) error {
	d.Calls["ResetCommandBuffer"]++
	return nil
}

func (d *Driver) QueueSubmit(vk.CommandBuffer, vk.Fence) error {
	d.Calls["QueueSubmit"]++
	return nil
}

func (d *Driver) DeviceWaitIdle() error {
	d.Calls["DeviceWaitIdle"]++
	return nil
}

func (d *Driver) CmdPipelineBarrier(vk.CommandBuffer, vk.PipelineStageFlags, vk.PipelineStageFlags, []vk.BufferMemoryBarrier, []vk.ImageMemoryBarrier) {
	d.Barriers++
}

func (d *Driver) CmdBindDescriptorSets(vk.CommandBuffer, vk.PipelineBindPoint, vk.PipelineLayout, uint32, []vk.DescriptorSet, []uint32) {
	d.Calls["CmdBindDescriptorSets"]++
}

func (d *Driver) CmdBeginRenderPass(vk.CommandBuffer, *vk.RenderPassBeginInfo) {
	d.Calls["CmdBeginRenderPass"]++
}

func (d *Driver) CmdEndRenderPass(vk.CommandBuffer) {
	d.Calls["CmdEndRenderPass"]++
}

func (d *Driver) CmdBindPipeline(vk.CommandBuffer, vk.PipelineBindPoint, vk.Pipeline) {
	d.Calls["CmdBindPipeline"]++
}

func (d *Driver) MinUniformBufferOffsetAlignment() uint64 {
	return d.Alignment
}
