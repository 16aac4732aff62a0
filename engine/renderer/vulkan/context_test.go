package vulkan

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) (*fakeDriver, *VulkanContext) {
	t.Helper()
	d := newFakeDriver()
	vc, err := NewVulkanContext(d, testConfig())
	require.NoError(t, err)
	return d, vc
}

func runFrame(t *testing.T, vc *VulkanContext) {
	t.Helper()
	_, err := vc.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, vc.EndFrame())
}

func TestFrameLoopCyclesSlots(t *testing.T) {
	d, vc := newTestContext(t)

	for i := 1; i <= 5; i++ {
		cmd, err := vc.BeginFrame()
		require.NoError(t, err)
		require.Equal(t, i%2, vc.CurrentFrame)
		require.Equal(t, uint64(i), vc.FrameNumber)
		require.Same(t, cmd, vc.CurrentCommandBuffer())
		require.True(t, cmd.IsRecording())
		require.NoError(t, vc.EndFrame())
		require.Equal(t, COMMAND_BUFFER_STATE_SUBMITTED, cmd.State)
	}
	require.Equal(t, 5, d.calls["QueueSubmit"])
	// The first visit to each slot finds its fence already signaled.
	require.Equal(t, 3, d.calls["WaitForFence"])
	require.Equal(t, 3, d.calls["ResetCommandBuffer"])
	require.Equal(t, 5, d.calls["ResetFence"])
}

func TestFrameCallsMustPair(t *testing.T) {
	_, vc := newTestContext(t)

	require.True(t, errors.HasAssertionFailure(vc.EndFrame()))
	_, err := vc.BeginFrame()
	require.NoError(t, err)
	_, err = vc.BeginFrame()
	require.True(t, errors.HasAssertionFailure(err))
	require.NoError(t, vc.EndFrame())
}

func TestDestroyedBufferOutlivesItsFrame(t *testing.T) {
	d, vc := newTestContext(t)
	h, err := vc.CreateBuffer(BufferDesc{Name: "mesh", Size: 512})
	require.NoError(t, err)

	_, err = vc.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, vc.DestroyBuffer(h))
	_, err = vc.Buffer(h)
	require.True(t, errors.Is(err, core.ErrStaleHandle), "handle is invalid immediately")
	require.True(t, errors.Is(vc.DestroyBuffer(h), core.ErrStaleHandle))
	require.NoError(t, vc.EndFrame())

	runFrame(t, vc)
	require.Zero(t, d.calls["DestroyBuffer"], "the GPU may still be reading it")

	_, err = vc.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, 1, d.calls["DestroyBuffer"])
	require.NoError(t, vc.EndFrame())
}

func TestImageHandlesAndFramebuffers(t *testing.T) {
	d, vc := newTestContext(t)
	pass, err := vc.RenderPasses.Get(forwardPass(vk.AttachmentLoadOpClear))
	require.NoError(t, err)

	color := vc.ImportImage(WrapExternalImage("swapchain-0", vk.Image(d.next()), vk.ImageView(d.next()), vk.FormatB8g8r8a8Unorm, 64, 64, AccessNone))
	depth, err := vc.CreateImage(ImageDesc{Name: "depth", Format: vk.FormatD32Sfloat, Width: 64, Height: 64, Aspect: vk.ImageAspectFlags(vk.ImageAspectDepthBit)})
	require.NoError(t, err)

	fb, err := vc.CreateFramebuffer(pass, 64, 64, color, depth)
	require.NoError(t, err)

	cmd, err := vc.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, pass.Begin(cmd, fb, ClearValues{Depth: 1}))
	require.True(t, errors.HasAssertionFailure(vc.EndFrame()), "frame ended inside a render pass")
	require.NoError(t, pass.End(cmd, fb))
	require.NoError(t, vc.EndFrame())

	vc.DestroyFramebuffer(fb)
	require.NoError(t, vc.DestroyImage(depth))
	require.NoError(t, vc.DestroyImage(color))
	_, err = vc.CreateFramebuffer(pass, 64, 64, color, depth)
	require.True(t, errors.Is(err, core.ErrStaleHandle))

	for i := 0; i < vc.Config().MaxFlightCount; i++ {
		_, err = vc.BeginFrame()
		require.NoError(t, err)
		require.NoError(t, vc.EndFrame())
	}
	require.Equal(t, 1, d.calls["DestroyFramebuffer"])
	require.Equal(t, 1, d.calls["DestroyImage"], "imported images are not destroyed")
	require.Equal(t, 1, d.calls["DestroyImageView"])
}

func TestFenceTimeoutIsReported(t *testing.T) {
	d, vc := newTestContext(t)
	runFrame(t, vc)
	runFrame(t, vc)

	d.waitResult = vk.Timeout
	_, err := vc.BeginFrame()
	require.True(t, errors.Is(err, core.ErrFenceTimeout))
	require.False(t, errors.Is(err, core.ErrDeviceLost))

	// The caller may retry once the GPU catches up.
	d.waitResult = vk.Success
	runFrame(t, vc)
	require.Equal(t, uint64(3), vc.FrameNumber)
}

func TestDeviceLossIsFatal(t *testing.T) {
	d, vc := newTestContext(t)
	runFrame(t, vc)
	runFrame(t, vc)

	d.waitResult = vk.ErrorDeviceLost
	_, err := vc.BeginFrame()
	require.True(t, errors.Is(err, core.ErrDeviceLost))
	require.True(t, errors.Is(err, core.ErrVulkanCall))
	res, ok := ResultOf(err)
	require.True(t, ok)
	require.Equal(t, vk.ErrorDeviceLost, res)
}

func TestSubmitFailureIsReturned(t *testing.T) {
	d, vc := newTestContext(t)
	d.failCreate["QueueSubmit"] = vk.ErrorDeviceLost

	_, err := vc.BeginFrame()
	require.NoError(t, err)
	err = vc.EndFrame()
	require.True(t, errors.Is(err, core.ErrDeviceLost))
}

func TestSubmitFailureLeavesTheSlotWaitable(t *testing.T) {
	d, vc := newTestContext(t)
	d.failCreate["QueueSubmit"] = vk.ErrorOutOfDeviceMemory

	_, err := vc.BeginFrame()
	require.NoError(t, err)
	old := vc.InFlightFences[1].Handle
	require.Error(t, vc.EndFrame())
	require.Equal(t, 1, d.calls["DestroyFence"])
	require.True(t, vc.InFlightFences[1].Handle != old)
	require.True(t, vc.InFlightFences[1].IsSignaled, "nothing will ever signal a reset fence that was not submitted")

	delete(d.failCreate, "QueueSubmit")
	runFrame(t, vc)
	runFrame(t, vc)
	require.Equal(t, 1, vc.CurrentFrame)
}

func TestFailedFrameStartKeepsSlotsInStep(t *testing.T) {
	d, vc := newTestContext(t)
	runFrame(t, vc)
	runFrame(t, vc)

	h, err := vc.CreateBuffer(BufferDesc{Name: "mesh", Size: 512})
	require.NoError(t, err)
	_, err = vc.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, 1, vc.CurrentFrame)
	require.NoError(t, vc.DestroyBuffer(h))
	require.NoError(t, vc.EndFrame())

	d.failCreate["BeginCommandBuffer"] = vk.ErrorOutOfHostMemory
	_, err = vc.BeginFrame()
	require.Error(t, err)
	require.Equal(t, vc.CurrentFrame, vc.Pacer.Index())
	require.Zero(t, d.calls["DestroyBuffer"])
	delete(d.failCreate, "BeginCommandBuffer")

	// Slot 1 comes back only after its fence was waited on.
	waits := d.calls["WaitForFence"]
	_, err = vc.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, 1, vc.CurrentFrame)
	require.Equal(t, vc.CurrentFrame, vc.Pacer.Index())
	require.Equal(t, waits+1, d.calls["WaitForFence"])
	require.Equal(t, 1, d.calls["DestroyBuffer"])
	require.NoError(t, vc.EndFrame())
}

func TestFenceResetFailureDoesNotSubmit(t *testing.T) {
	d, vc := newTestContext(t)
	d.failCreate["ResetFence"] = vk.ErrorOutOfDeviceMemory

	_, err := vc.BeginFrame()
	require.NoError(t, err)
	require.True(t, errors.Is(vc.EndFrame(), core.ErrVulkanCall))
	require.Zero(t, d.calls["QueueSubmit"])
	require.True(t, vc.InFlightFences[1].IsSignaled)

	delete(d.failCreate, "ResetFence")
	for i := 0; i < 3; i++ {
		runFrame(t, vc)
	}
	require.Equal(t, 3, d.calls["QueueSubmit"])
}

func TestMaterialsRecycleThroughTheFrameLoop(t *testing.T) {
	d, vc := newTestContext(t)
	desc := sampleDescription(spirv(1), spirv(2))
	m, err := vc.NewMaterial("lit", desc)
	require.NoError(t, err)

	sampler, err := vc.Samplers.Get(SamplerDesc{MagFilter: vk.FilterLinear, MinFilter: vk.FilterLinear})
	require.NoError(t, err)
	imageHandle, err := vc.CreateImage(ImageDesc{Name: "albedo", Format: vk.FormatR8g8b8a8Unorm, Width: 4, Height: 4, Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit)})
	require.NoError(t, err)
	image, err := vc.Image(imageHandle)
	require.NoError(t, err)
	bufferHandle, err := vc.CreateBuffer(BufferDesc{Name: "lights", Size: 2048})
	require.NoError(t, err)
	buffer, err := vc.Buffer(bufferHandle)
	require.NoError(t, err)

	require.NoError(t, m.UpdateDescriptorByName("albedo", ImageResource{Image: image, Sampler: sampler}))
	require.NoError(t, m.UpdateDescriptorByName("normal", ImageResource{Image: image, Sampler: sampler}))
	require.NoError(t, m.UpdateDescriptorByName("lights", BufferResource{Buffer: buffer}))

	for i := 0; i < 4; i++ {
		cmd, err := vc.BeginFrame()
		require.NoError(t, err)
		require.NoError(t, m.SetUniformData("camera", make([]byte, 128), vc.Uniforms))
		require.NoError(t, m.SetUniformData("object", make([]byte, 64), vc.Uniforms))
		require.NoError(t, m.TransitionImages(cmd))
		require.NoError(t, m.Bind(cmd, vk.PipelineBindPointGraphics))
		require.NoError(t, vc.EndFrame())
	}

	// The camera block moves every frame, so set 0 is replaced each frame
	// and the old one freed once its slot comes around again.
	stats := vc.Descriptors.Stats()
	require.Equal(t, uint64(3+3), stats.Allocated)
	require.Equal(t, uint64(1), stats.Freed)
	require.Equal(t, 5, stats.Live)
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 4, d.calls["UpdateDescriptorSets"])

	m.Destroy()
	vc.Shutdown()
	require.Zero(t, vc.Descriptors.Stats().Pending)
}

func TestStatsJSONDescribesTheContext(t *testing.T) {
	_, vc := newTestContext(t)
	_, err := vc.Pipelines.Get(sampleDescription(spirv(1), spirv(2)), mustPass(t, vc))
	require.NoError(t, err)
	runFrame(t, vc)

	data, err := vc.StatsJSON()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, vc.ID.String(), doc["context"])
	require.Equal(t, float64(1), doc["frames"])
	require.Equal(t, float64(2), doc["flightCount"])

	caches := doc["caches"].(map[string]interface{})
	require.Contains(t, caches, "layouts")
	require.Equal(t, float64(1), caches["pipelines"].(map[string]interface{})["entries"])
	require.Contains(t, doc, "descriptorSets")
	require.Contains(t, doc, "uniforms")
	require.Contains(t, doc, "timing")
}

func mustPass(t *testing.T, vc *VulkanContext) *VulkanRenderpass {
	t.Helper()
	pass, err := vc.RenderPasses.Get(forwardPass(vk.AttachmentLoadOpClear))
	require.NoError(t, err)
	return pass
}

func TestShutdownReleasesEverything(t *testing.T) {
	d, vc := newTestContext(t)
	_, err := vc.CreateBuffer(BufferDesc{Name: "leaked", Size: 64})
	require.NoError(t, err)
	_, err = vc.Pipelines.Get(sampleDescription(spirv(1), spirv(2)), mustPass(t, vc))
	require.NoError(t, err)
	runFrame(t, vc)

	vc.Shutdown()
	require.Equal(t, 1, d.calls["DeviceWaitIdle"])
	require.Equal(t, 2, d.calls["DestroyBuffer"], "leaked buffer and the uniform ring")
	require.Equal(t, 2, d.calls["DestroyFence"])
	require.Equal(t, 2, d.calls["FreeCommandBuffer"])
	require.Equal(t, 1, d.calls["DestroyPipeline"])
	require.Equal(t, 1, d.calls["DestroyPipelineLayout"])
	require.Equal(t, 1, d.calls["DestroyRenderPass"])
}

func TestContextRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFlightCount = 1
	_, err := NewVulkanContext(newFakeDriver(), cfg)
	require.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestContextCreationFailureCleansUp(t *testing.T) {
	d := newFakeDriver()
	d.failCreate["AllocateCommandBuffer"] = vk.ErrorOutOfHostMemory
	_, err := NewVulkanContext(d, testConfig())
	require.True(t, errors.Is(err, core.ErrVulkanCall))
	require.Equal(t, 1, d.calls["DestroyFence"])
	require.Equal(t, 1, d.calls["DestroyBuffer"])
}
