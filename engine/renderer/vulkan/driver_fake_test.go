package vulkan

import (
	"io"
	"os"
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type barrierRecord struct {
	buffers []vk.BufferMemoryBarrier
	images  []vk.ImageMemoryBarrier
	src     vk.PipelineStageFlags
	dst     vk.PipelineStageFlags
}

type bindRecord struct {
	layout         vk.PipelineLayout
	sets           []vk.DescriptorSet
	dynamicOffsets []uint32
}

// fakeDriver records every call and hands out unique handles. It needs no GPU.
type fakeDriver struct {
	handles int

	calls map[string]int

	// poolCapacity caps the sets one pool can hold, zero means the requested maxSets.
	poolCapacity int
	poolLive     map[vk.DescriptorPool]int
	poolMax      map[vk.DescriptorPool]int
	setPool      map[vk.DescriptorSet]vk.DescriptorPool
	freed        map[vk.DescriptorSet]int

	memory map[vk.DeviceMemory][]byte
	sizes  map[vk.DeviceMemory]uint64

	barriers []barrierRecord
	binds    []bindRecord
	writes   [][]vk.WriteDescriptorSet

	failCreate map[string]vk.Result
	waitResult vk.Result
	alignment  uint64
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		calls:      map[string]int{},
		poolLive:   map[vk.DescriptorPool]int{},
		poolMax:    map[vk.DescriptorPool]int{},
		setPool:    map[vk.DescriptorSet]vk.DescriptorPool{},
		freed:      map[vk.DescriptorSet]int{},
		memory:     map[vk.DeviceMemory][]byte{},
		sizes:      map[vk.DeviceMemory]uint64{},
		failCreate: map[string]vk.Result{},
		waitResult: vk.Success,
		alignment:  256,
	}
}

var _ Driver = (*fakeDriver)(nil)

// fakeHandleSpace backs fake handles outside the Go heap. goki/vulkan handle
// types are not-in-heap pointers and reflect panics on heap addresses of them.
var fakeHandleSpace [1 << 20]byte

func (d *fakeDriver) next() unsafe.Pointer {
	d.handles++
	return unsafe.Pointer(&fakeHandleSpace[d.handles%len(fakeHandleSpace)])
}

// sameSets compares descriptor set handles by value.
func sameSets(a, b []vk.DescriptorSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fail returns the injected error for op, if any.
func (d *fakeDriver) fail(op string) error {
	d.calls[op]++
	if res, ok := d.failCreate[op]; ok {
		return checkResult(op, res)
	}
	return nil
}

func (d *fakeDriver) CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return vk.NullDescriptorSetLayout, err
	}
	return vk.DescriptorSetLayout(d.next()), nil
}

func (d *fakeDriver) DestroyDescriptorSetLayout(vk.DescriptorSetLayout) {
	d.calls["DestroyDescriptorSetLayout"]++
}

func (d *fakeDriver) CreatePipelineLayout([]vk.DescriptorSetLayout, []vk.PushConstantRange) (vk.PipelineLayout, error) {
	if err := d.fail("CreatePipelineLayout"); err != nil {
		return vk.NullPipelineLayout, err
	}
	return vk.PipelineLayout(d.next()), nil
}

func (d *fakeDriver) DestroyPipelineLayout(vk.PipelineLayout) {
	d.calls["DestroyPipelineLayout"]++
}

func (d *fakeDriver) CreateRenderPass(*vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	if err := d.fail("CreateRenderPass"); err != nil {
		return vk.NullRenderPass, err
	}
	return vk.RenderPass(d.next()), nil
}

func (d *fakeDriver) DestroyRenderPass(vk.RenderPass) {
	d.calls["DestroyRenderPass"]++
}

func (d *fakeDriver) CreateFramebuffer(*vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	if err := d.fail("CreateFramebuffer"); err != nil {
		return vk.NullFramebuffer, err
	}
	return vk.Framebuffer(d.next()), nil
}

func (d *fakeDriver) DestroyFramebuffer(vk.Framebuffer) {
	d.calls["DestroyFramebuffer"]++
}

func (d *fakeDriver) CreateShaderModule([]byte) (vk.ShaderModule, error) {
	if err := d.fail("CreateShaderModule"); err != nil {
		return vk.NullShaderModule, err
	}
	return vk.ShaderModule(d.next()), nil
}

func (d *fakeDriver) DestroyShaderModule(vk.ShaderModule) {
	d.calls["DestroyShaderModule"]++
}

func (d *fakeDriver) CreateGraphicsPipeline(*vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return vk.NullPipeline, err
	}
	return vk.Pipeline(d.next()), nil
}

func (d *fakeDriver) DestroyPipeline(vk.Pipeline) {
	d.calls["DestroyPipeline"]++
}

func (d *fakeDriver) CreateSampler(*vk.SamplerCreateInfo) (vk.Sampler, error) {
	if err := d.fail("CreateSampler"); err != nil {
		return vk.NullSampler, err
	}
	return vk.Sampler(d.next()), nil
}

func (d *fakeDriver) DestroySampler(vk.Sampler) {
	d.calls["DestroySampler"]++
}

func (d *fakeDriver) CreateDescriptorPool(maxSets uint32, _ []vk.DescriptorPoolSize) (vk.DescriptorPool, error) {
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return vk.NullDescriptorPool, err
	}
	pool := vk.DescriptorPool(d.next())
	d.poolMax[pool] = int(maxSets)
	if d.poolCapacity > 0 {
		d.poolMax[pool] = d.poolCapacity
	}
	return pool, nil
}

func (d *fakeDriver) DestroyDescriptorPool(pool vk.DescriptorPool) {
	d.calls["DestroyDescriptorPool"]++
	delete(d.poolLive, pool)
}

func (d *fakeDriver) AllocateDescriptorSet(pool vk.DescriptorPool, _ vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	d.calls["AllocateDescriptorSet"]++
	if d.poolLive[pool] >= d.poolMax[pool] {
		return vk.NullDescriptorSet, checkResult("vkAllocateDescriptorSets", vk.ErrorOutOfPoolMemory)
	}
	d.poolLive[pool]++
	set := vk.DescriptorSet(d.next())
	d.setPool[set] = pool
	return set, nil
}

func (d *fakeDriver) FreeDescriptorSets(pool vk.DescriptorPool, sets []vk.DescriptorSet) error {
	if err := d.fail("FreeDescriptorSets"); err != nil {
		return err
	}
	for _, set := range sets {
		d.freed[set]++
		if d.setPool[set] == pool {
			d.poolLive[pool]--
		}
	}
	return nil
}

func (d *fakeDriver) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	d.calls["UpdateDescriptorSets"]++
	d.writes = append(d.writes, append([]vk.WriteDescriptorSet(nil), writes...))
}

func (d *fakeDriver) CreateBuffer(size uint64, _ vk.BufferUsageFlags, _ vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return vk.NullBuffer, vk.NullDeviceMemory, err
	}
	memory := vk.DeviceMemory(d.next())
	d.sizes[memory] = size
	return vk.Buffer(d.next()), memory, nil
}

func (d *fakeDriver) DestroyBuffer(vk.Buffer, vk.DeviceMemory) {
	d.calls["DestroyBuffer"]++
}

func (d *fakeDriver) MapMemory(memory vk.DeviceMemory, size uint64) ([]byte, error) {
	d.calls["MapMemory"]++
	data := make([]byte, size)
	d.memory[memory] = data
	return data, nil
}

func (d *fakeDriver) UnmapMemory(memory vk.DeviceMemory) {
	d.calls["UnmapMemory"]++
	delete(d.memory, memory)
}

func (d *fakeDriver) CreateImage(*vk.ImageCreateInfo, vk.MemoryPropertyFlags) (vk.Image, vk.DeviceMemory, error) {
	if err := d.fail("CreateImage"); err != nil {
		return vk.NullImage, vk.NullDeviceMemory, err
	}
	return vk.Image(d.next()), vk.DeviceMemory(d.next()), nil
}

func (d *fakeDriver) DestroyImage(vk.Image, vk.DeviceMemory) {
	d.calls["DestroyImage"]++
}

func (d *fakeDriver) CreateImageView(*vk.ImageViewCreateInfo) (vk.ImageView, error) {
	if err := d.fail("CreateImageView"); err != nil {
		return vk.NullImageView, err
	}
	return vk.ImageView(d.next()), nil
}

func (d *fakeDriver) DestroyImageView(vk.ImageView) {
	d.calls["DestroyImageView"]++
}

func (d *fakeDriver) CreateFence(bool) (vk.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return vk.NullFence, err
	}
	return vk.Fence(d.next()), nil
}

func (d *fakeDriver) DestroyFence(vk.Fence) {
	d.calls["DestroyFence"]++
}

func (d *fakeDriver) WaitForFence(vk.Fence, uint64) vk.Result {
	d.calls["WaitForFence"]++
	return d.waitResult
}

func (d *fakeDriver) ResetFence(vk.Fence) error {
	return d.fail("ResetFence")
}

func (d *fakeDriver) AllocateCommandBuffer(bool) (vk.CommandBuffer, error) {
	if err := d.fail("AllocateCommandBuffer"); err != nil {
		return nil, err
	}
	return vk.CommandBuffer(d.next()), nil
}

func (d *fakeDriver) FreeCommandBuffer(vk.CommandBuffer) {
	d.calls["FreeCommandBuffer"]++
}

func (d *fakeDriver) BeginCommandBuffer(vk.CommandBuffer, vk.CommandBufferUsageFlags) error {
	return d.fail("BeginCommandBuffer")
}

func (d *fakeDriver) EndCommandBuffer(vk.CommandBuffer) error {
	d.calls["EndCommandBuffer"]++
	return nil
}

func (d *fakeDriver) ResetCommandBuffer(vk.CommandBuffer) error {
	d.calls["ResetCommandBuffer"]++
	return nil
}

func (d *fakeDriver) QueueSubmit(vk.CommandBuffer, vk.Fence) error {
	return d.fail("QueueSubmit")
}

func (d *fakeDriver) DeviceWaitIdle() error {
	d.calls["DeviceWaitIdle"]++
	return nil
}

func (d *fakeDriver) CmdPipelineBarrier(_ vk.CommandBuffer, src, dst vk.PipelineStageFlags, buffers []vk.BufferMemoryBarrier, images []vk.ImageMemoryBarrier) {
	d.barriers = append(d.barriers, barrierRecord{buffers: buffers, images: images, src: src, dst: dst})
}

func (d *fakeDriver) CmdBindDescriptorSets(_ vk.CommandBuffer, _ vk.PipelineBindPoint, layout vk.PipelineLayout, _ uint32, sets []vk.DescriptorSet, dynamicOffsets []uint32) {
	d.binds = append(d.binds, bindRecord{
		layout:         layout,
		sets:           append([]vk.DescriptorSet(nil), sets...),
		dynamicOffsets: append([]uint32(nil), dynamicOffsets...),
	})
}

func (d *fakeDriver) CmdBeginRenderPass(vk.CommandBuffer, *vk.RenderPassBeginInfo) {
	d.calls["CmdBeginRenderPass"]++
}

func (d *fakeDriver) CmdEndRenderPass(vk.CommandBuffer) {
	d.calls["CmdEndRenderPass"]++
}

func (d *fakeDriver) CmdBindPipeline(vk.CommandBuffer, vk.PipelineBindPoint, vk.Pipeline) {
	d.calls["CmdBindPipeline"]++
}

func (d *fakeDriver) MinUniformBufferOffsetAlignment() uint64 {
	return d.alignment
}

// testConfig is the default configuration with logging silenced.
func testConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.LogLevel = "error"
	return cfg
}

// recordingBuffer returns a command buffer in the recording state.
func recordingBuffer(d *fakeDriver) *VulkanCommandBuffer {
	cmd, err := NewVulkanCommandBuffer(d, true)
	if err != nil {
		panic(err)
	}
	if err := cmd.Begin(true, false, false); err != nil {
		panic(err)
	}
	return cmd
}
