package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
	"github.com/stretchr/testify/require"
)

func forwardPass(load vk.AttachmentLoadOp) RenderPassDesc {
	return RenderPassDesc{
		Colors: []AttachmentDesc{{
			Format:        vk.FormatB8g8r8a8Unorm,
			Samples:       vk.SampleCount1Bit,
			LoadOp:        load,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialAccess: AccessNone,
			FinalAccess:   AccessPresent,
		}},
		DepthStencil: AttachmentDesc{
			Format:        vk.FormatD32Sfloat,
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpClear,
			StoreOp:       vk.AttachmentStoreOpDontCare,
			InitialAccess: AccessNone,
			FinalAccess:   AccessDepthStencilReadWrite,
		},
		HasDepth: true,
	}
}

func TestCompatHashIgnoresLoadStoreOps(t *testing.T) {
	cleared := forwardPass(vk.AttachmentLoadOpClear)
	load := forwardPass(vk.AttachmentLoadOpLoad)
	require.NotEqual(t, cleared.Hash(), load.Hash())
	require.Equal(t, cleared.CompatHash(), load.CompatHash())

	noDepth := forwardPass(vk.AttachmentLoadOpClear)
	noDepth.HasDepth = false
	require.NotEqual(t, cleared.CompatHash(), noDepth.CompatHash())

	hdr := forwardPass(vk.AttachmentLoadOpClear)
	hdr.Colors[0].Format = vk.FormatR16g16b16a16Sfloat
	require.NotEqual(t, cleared.CompatHash(), hdr.CompatHash())
}

func TestRenderPassCacheIndexesByCompatibility(t *testing.T) {
	d := newFakeDriver()
	cache := NewRenderPassCache(d)

	desc := forwardPass(vk.AttachmentLoadOpClear)
	a, err := cache.Get(desc)
	require.NoError(t, err)
	again, err := cache.Get(desc)
	require.NoError(t, err)
	require.Same(t, a, again)

	b, err := cache.Get(forwardPass(vk.AttachmentLoadOpLoad))
	require.NoError(t, err)
	require.NotSame(t, a, b)
	require.True(t, a.CompatibleWith(b))
	require.Equal(t, 2, d.calls["CreateRenderPass"])

	found, ok := cache.Compatible(b.CompatHash)
	require.True(t, ok)
	require.Same(t, a, found)

	// Mutating the caller's slice must not reach the cached description.
	desc.Colors[0].Format = vk.FormatR8Unorm
	require.Equal(t, vk.FormatB8g8r8a8Unorm, a.Desc.Colors[0].Format)

	cache.Destroy()
	require.Equal(t, 2, d.calls["DestroyRenderPass"])
}

func TestRenderPassRejectsUnsupportedShapes(t *testing.T) {
	cache := NewRenderPassCache(newFakeDriver())

	_, err := cache.Get(RenderPassDesc{})
	require.True(t, errors.Is(err, core.ErrInvalidDescription))

	desc := forwardPass(vk.AttachmentLoadOpClear)
	desc.Subpass = 1
	_, err = cache.Get(desc)
	require.True(t, errors.Is(err, core.ErrInvalidDescription))

	// Attachments must start and end in states that have an image layout.
	for name, edit := range map[string]func(*RenderPassDesc){
		"final none":           func(d *RenderPassDesc) { d.Colors[0].FinalAccess = AccessNone },
		"final uniform":        func(d *RenderPassDesc) { d.DepthStencil.FinalAccess = AccessUniformRead },
		"initial index buffer": func(d *RenderPassDesc) { d.Colors[0].InitialAccess = AccessIndexRead },
	} {
		desc := forwardPass(vk.AttachmentLoadOpClear)
		edit(&desc)
		_, err = cache.Get(desc)
		require.True(t, errors.Is(err, core.ErrInvalidDescription), name)
		require.True(t, errors.HasAssertionFailure(err), name)
	}
	require.Zero(t, cache.Stats().Entries)
}

func newAttachments(t *testing.T, d *fakeDriver) []*VulkanImage {
	t.Helper()
	color, err := NewVulkanImage(d, ImageDesc{Name: "color", Format: vk.FormatB8g8r8a8Unorm, Width: 64, Height: 64, Aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit)})
	require.NoError(t, err)
	depth, err := NewVulkanImage(d, ImageDesc{Name: "depth", Format: vk.FormatD32Sfloat, Width: 64, Height: 64, Aspect: vk.ImageAspectFlags(vk.ImageAspectDepthBit)})
	require.NoError(t, err)
	return []*VulkanImage{color, depth}
}

func TestRenderPassTracksAttachmentStates(t *testing.T) {
	d := newFakeDriver()
	pass, err := NewRenderPassCache(d).Get(forwardPass(vk.AttachmentLoadOpClear))
	require.NoError(t, err)
	images := newAttachments(t, d)
	fb, err := NewVulkanFramebuffer(d, pass, 64, 64, images)
	require.NoError(t, err)

	cmd := recordingBuffer(d)
	require.NoError(t, pass.Begin(cmd, fb, ClearValues{Color: [4]float32{0, 0, 0, 1}, Depth: 1}))
	require.Empty(t, d.barriers, "discarded attachments need no transition")
	require.Equal(t, COMMAND_BUFFER_STATE_IN_RENDER_PASS, cmd.State)
	require.Equal(t, AccessColorAttachmentReadWrite, images[0].Access())
	require.Equal(t, AccessDepthStencilReadWrite, images[1].Access())

	// Barriers are not allowed inside the pass.
	err = pass.Begin(cmd, fb, ClearValues{})
	require.True(t, errors.HasAssertionFailure(err))

	require.NoError(t, pass.End(cmd, fb))
	require.Equal(t, COMMAND_BUFFER_STATE_RECORDING, cmd.State)
	require.Equal(t, AccessPresent, images[0].Access())
	require.Equal(t, AccessDepthStencilReadWrite, images[1].Access())
	require.Equal(t, 1, d.calls["CmdBeginRenderPass"])
	require.Equal(t, 1, d.calls["CmdEndRenderPass"])
}

func TestLoadingPassTransitionsToItsInitialState(t *testing.T) {
	d := newFakeDriver()
	desc := forwardPass(vk.AttachmentLoadOpLoad)
	desc.Colors[0].InitialAccess = AccessColorAttachmentReadWrite
	pass, err := NewRenderPassCache(d).Get(desc)
	require.NoError(t, err)
	images := newAttachments(t, d)
	fb, err := NewVulkanFramebuffer(d, pass, 64, 64, images)
	require.NoError(t, err)

	cmd := recordingBuffer(d)
	require.NoError(t, pass.Begin(cmd, fb, ClearValues{}))
	require.Len(t, d.barriers, 1)
	require.Equal(t, vk.ImageLayoutColorAttachmentOptimal, d.barriers[0].images[0].NewLayout)
}

func TestFramebufferMustMatchItsPass(t *testing.T) {
	d := newFakeDriver()
	cache := NewRenderPassCache(d)
	pass, err := cache.Get(forwardPass(vk.AttachmentLoadOpClear))
	require.NoError(t, err)
	images := newAttachments(t, d)

	_, err = NewVulkanFramebuffer(d, pass, 64, 64, images[:1])
	require.Error(t, err)

	other := forwardPass(vk.AttachmentLoadOpClear)
	other.HasDepth = false
	colorOnly, err := cache.Get(other)
	require.NoError(t, err)
	fb, err := NewVulkanFramebuffer(d, colorOnly, 64, 64, images[:1])
	require.NoError(t, err)

	err = pass.Begin(recordingBuffer(d), fb, ClearValues{})
	require.True(t, errors.HasAssertionFailure(err))

	fb.Destroy(d)
	require.Equal(t, 1, d.calls["DestroyFramebuffer"])
}
