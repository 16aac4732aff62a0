package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-runtime/engine/containers"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// frameRecord is a submitted frame the GPU may still be executing.
type frameRecord struct {
	Number    uint64
	Slot      int
	Submitted time.Time
}

// VulkanContext owns every runtime object of one device: caches,
// allocators, per-slot fences and command buffers, and the resources
// created through it. It is driven from a single thread.
type VulkanContext struct {
	ID     uuid.UUID
	driver Driver
	cfg    *core.Config

	Layouts      *LayoutCache
	RenderPasses *RenderPassCache
	Pipelines    *PipelineCache
	Samplers     *SamplerCache
	Descriptors  *DescriptorSetAllocator
	Uniforms     *UniformRingAllocator
	Pacer        *FramePacer

	InFlightFences         []*VulkanFence
	GraphicsCommandBuffers []*VulkanCommandBuffer

	buffers  *core.Arena[*VulkanBuffer]
	images   *core.Arena[*VulkanImage]
	inFlight *containers.RingQueue[frameRecord]

	clock   *core.Clock
	metrics *core.FrameMetrics

	CurrentFrame int
	FrameNumber  uint64
	recording    bool
	lastLatency  time.Duration
}

func NewVulkanContext(driver Driver, cfg *core.Config) (*VulkanContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vc := &VulkanContext{
		ID:       uuid.New(),
		driver:   driver,
		cfg:      cfg,
		buffers:  core.NewArena[*VulkanBuffer](64),
		images:   core.NewArena[*VulkanImage](64),
		inFlight: containers.NewRingQueue[frameRecord](cfg.MaxFlightCount),
		clock:    core.NewClock(),
		metrics:  core.NewFrameMetrics(),
	}
	vc.Layouts = NewLayoutCache(driver)
	vc.RenderPasses = NewRenderPassCache(driver)
	vc.Pipelines = NewPipelineCache(driver, vc.Layouts)
	vc.Samplers = NewSamplerCache(driver)
	vc.Descriptors = NewDescriptorSetAllocator(driver, cfg)
	vc.Pacer = NewFramePacer(cfg.MaxFlightCount)

	uniforms, err := NewUniformRingAllocator(driver, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating uniform ring")
	}
	vc.Uniforms = uniforms

	for i := 0; i < cfg.MaxFlightCount; i++ {
		// Signaled so the first wait on each slot returns immediately.
		fence, err := NewFence(driver, true)
		if err != nil {
			vc.Shutdown()
			return nil, err
		}
		vc.InFlightFences = append(vc.InFlightFences, fence)

		cmd, err := NewVulkanCommandBuffer(driver, true)
		if err != nil {
			vc.Shutdown()
			return nil, err
		}
		vc.GraphicsCommandBuffers = append(vc.GraphicsCommandBuffers, cmd)
	}

	core.LogInfo("vulkan context %s ready: %d frames in flight", vc.ID, cfg.MaxFlightCount)
	return vc, nil
}

func (vc *VulkanContext) Driver() Driver {
	return vc.driver
}

func (vc *VulkanContext) Config() *core.Config {
	return vc.cfg
}

// BeginFrame waits for the next slot's previous frame, recycles everything
// that frame released and starts recording the slot's command buffer. The
// slot's fence is reset by EndFrame right before the submit.
func (vc *VulkanContext) BeginFrame() (*VulkanCommandBuffer, error) {
	if vc.recording {
		return nil, errors.AssertionFailedf("BeginFrame called twice without EndFrame")
	}
	next := (vc.CurrentFrame + 1) % vc.cfg.MaxFlightCount
	fence := vc.InFlightFences[next]

	if err := fence.Wait(vc.cfg.FenceTimeoutNs); err != nil {
		return nil, errors.Wrapf(err, "waiting for frame slot %d", next)
	}
	vc.retireFrames(next)

	// The slot is idle on the GPU from here on. Commit to it before anything
	// that can fail so the subsystems and CurrentFrame never disagree; a
	// failed begin leaves the slot without a frame and its fence signaled.
	vc.CurrentFrame = next
	vc.Pacer.Tick()
	vc.Descriptors.Tick()
	vc.Uniforms.Tick()

	cmd := vc.GraphicsCommandBuffers[next]
	if cmd.State == COMMAND_BUFFER_STATE_SUBMITTED || cmd.State == COMMAND_BUFFER_STATE_RECORDING_ENDED {
		if err := cmd.Reset(); err != nil {
			return nil, err
		}
	}
	if err := cmd.Begin(true, false, false); err != nil {
		return nil, err
	}

	vc.FrameNumber++
	vc.recording = true

	if vc.FrameNumber == 1 {
		vc.clock.Start()
	} else {
		vc.metrics.Update(vc.clock.Lap())
	}
	return cmd, nil
}

// retireFrames drops the in-flight records the wait on slot just completed.
func (vc *VulkanContext) retireFrames(slot int) {
	for !vc.inFlight.IsEmpty() {
		record, err := vc.inFlight.Peek()
		if err != nil || record.Slot != slot {
			return
		}
		_, _ = vc.inFlight.Dequeue()
		vc.lastLatency = time.Since(record.Submitted)
	}
}

// EndFrame ends recording and submits the slot's command buffer guarded by
// the slot's fence.
func (vc *VulkanContext) EndFrame() error {
	if !vc.recording {
		return errors.AssertionFailedf("EndFrame called without BeginFrame")
	}
	cmd := vc.GraphicsCommandBuffers[vc.CurrentFrame]
	if err := cmd.End(); err != nil {
		return err
	}
	vc.recording = false

	// A fence is only unsignaled while a submission guards it.
	fence := vc.InFlightFences[vc.CurrentFrame]
	if err := fence.Reset(); err != nil {
		return err
	}
	if err := vc.driver.QueueSubmit(cmd.Handle, fence.Handle); err != nil {
		core.LogError("frame %d submit failed: %v", vc.FrameNumber, err)
		return errors.CombineErrors(err, vc.replaceFence(vc.CurrentFrame))
	}
	cmd.UpdateSubmitted()

	if err := vc.inFlight.Enqueue(frameRecord{Number: vc.FrameNumber, Slot: vc.CurrentFrame, Submitted: time.Now()}); err != nil {
		return errors.NewAssertionErrorWithWrappedErrf(err, "more than %d frames in flight", vc.cfg.MaxFlightCount)
	}
	return nil
}

// replaceFence swaps the slot's fence for a signaled one after a failed
// submit left it reset with nothing to signal it.
func (vc *VulkanContext) replaceFence(slot int) error {
	fence, err := NewFence(vc.driver, true)
	if err != nil {
		return err
	}
	vc.InFlightFences[slot].Destroy()
	vc.InFlightFences[slot] = fence
	return nil
}

// CurrentCommandBuffer is the buffer recording the current frame.
func (vc *VulkanContext) CurrentCommandBuffer() *VulkanCommandBuffer {
	return vc.GraphicsCommandBuffers[vc.CurrentFrame]
}

func (vc *VulkanContext) CreateBuffer(desc BufferDesc) (core.Handle, error) {
	buffer, err := NewVulkanBuffer(vc.driver, desc)
	if err != nil {
		return core.Handle{}, err
	}
	return vc.buffers.Insert(buffer), nil
}

func (vc *VulkanContext) Buffer(h core.Handle) (*VulkanBuffer, error) {
	buffer, ok := vc.buffers.Get(h)
	if !ok {
		return nil, errors.Mark(errors.Newf("buffer handle %v is stale", h), core.ErrStaleHandle)
	}
	return buffer, nil
}

// DestroyBuffer invalidates h now and destroys the buffer once the current
// frame has completed on the GPU.
func (vc *VulkanContext) DestroyBuffer(h core.Handle) error {
	buffer, err := vc.buffers.Remove(h)
	if err != nil {
		return err
	}
	vc.Pacer.PostCallable(func() {
		buffer.Destroy(vc.driver)
	})
	return nil
}

func (vc *VulkanContext) CreateImage(desc ImageDesc) (core.Handle, error) {
	image, err := NewVulkanImage(vc.driver, desc)
	if err != nil {
		return core.Handle{}, err
	}
	return vc.images.Insert(image), nil
}

// ImportImage tracks an externally owned image, such as a swapchain image.
func (vc *VulkanContext) ImportImage(image *VulkanImage) core.Handle {
	return vc.images.Insert(image)
}

func (vc *VulkanContext) Image(h core.Handle) (*VulkanImage, error) {
	image, ok := vc.images.Get(h)
	if !ok {
		return nil, errors.Mark(errors.Newf("image handle %v is stale", h), core.ErrStaleHandle)
	}
	return image, nil
}

func (vc *VulkanContext) DestroyImage(h core.Handle) error {
	image, err := vc.images.Remove(h)
	if err != nil {
		return err
	}
	vc.Pacer.PostCallable(func() {
		image.Destroy(vc.driver)
	})
	return nil
}

func (vc *VulkanContext) CreateFramebuffer(pass *VulkanRenderpass, width, height uint32, attachments ...core.Handle) (*VulkanFramebuffer, error) {
	images := make([]*VulkanImage, len(attachments))
	for i, h := range attachments {
		image, err := vc.Image(h)
		if err != nil {
			return nil, err
		}
		images[i] = image
	}
	return NewVulkanFramebuffer(vc.driver, pass, width, height, images)
}

func (vc *VulkanContext) DestroyFramebuffer(framebuffer *VulkanFramebuffer) {
	vc.Pacer.PostCallable(func() {
		framebuffer.Destroy(vc.driver)
	})
}

// NewMaterial creates a material against the cached layout of desc.
func (vc *VulkanContext) NewMaterial(name string, desc *PipelineDescription) (*VulkanMaterial, error) {
	layout, err := vc.Layouts.Get(desc)
	if err != nil {
		return nil, err
	}
	return NewVulkanMaterial(name, layout, vc.Descriptors), nil
}

// Shutdown waits for the device, runs all deferred work and destroys every
// object the context owns. The context is unusable afterwards.
func (vc *VulkanContext) Shutdown() {
	if err := vc.driver.DeviceWaitIdle(); err != nil {
		core.LogError("device wait idle during shutdown: %v", err)
	}
	vc.Pacer.InvokeAllNow()

	if n := vc.buffers.Len(); n > 0 {
		core.LogWarn("vulkan context %s: destroying %d leaked buffers", vc.ID, n)
	}
	vc.buffers.Each(func(_ core.Handle, b *VulkanBuffer) bool {
		b.Destroy(vc.driver)
		return true
	})
	if n := vc.images.Len(); n > 0 {
		core.LogWarn("vulkan context %s: destroying %d leaked images", vc.ID, n)
	}
	vc.images.Each(func(_ core.Handle, i *VulkanImage) bool {
		i.Destroy(vc.driver)
		return true
	})
	vc.buffers = core.NewArena[*VulkanBuffer](0)
	vc.images = core.NewArena[*VulkanImage](0)

	vc.Pipelines.Destroy()
	vc.Layouts.Destroy()
	vc.RenderPasses.Destroy()
	vc.Samplers.Destroy()
	vc.Descriptors.Destroy()
	if vc.Uniforms != nil {
		vc.Uniforms.Destroy()
	}

	for _, cmd := range vc.GraphicsCommandBuffers {
		cmd.Free()
	}
	vc.GraphicsCommandBuffers = nil
	for _, fence := range vc.InFlightFences {
		fence.Destroy()
	}
	vc.InFlightFences = nil
	core.LogInfo("vulkan context %s shut down after %d frames", vc.ID, vc.FrameNumber)
}
