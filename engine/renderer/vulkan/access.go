package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// AccessType is the tracked state of a buffer or image. It only changes
// through the transition calls on VulkanCommandBuffer.
type AccessType uint8

const (
	AccessNone AccessType = iota
	AccessTransferSource
	AccessTransferDestination
	AccessShaderRead
	AccessShaderWrite
	AccessShaderReadWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessColorAttachmentReadWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessDepthStencilReadWrite
	AccessPresent
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessInputAttachmentRead
	accessTypeCount
)

type accessInfo struct {
	name   string
	access vk.AccessFlagBits
	layout vk.ImageLayout
	stages vk.PipelineStageFlagBits
}

const shaderStages = vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit
const fragmentTestStages = vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit

var accessTable = [accessTypeCount]accessInfo{
	AccessNone:                     {"none", 0, vk.ImageLayoutUndefined, vk.PipelineStageTopOfPipeBit},
	AccessTransferSource:           {"transfer-src", vk.AccessTransferReadBit, vk.ImageLayoutTransferSrcOptimal, vk.PipelineStageTransferBit},
	AccessTransferDestination:      {"transfer-dst", vk.AccessTransferWriteBit, vk.ImageLayoutTransferDstOptimal, vk.PipelineStageTransferBit},
	AccessShaderRead:               {"shader-read", vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal, shaderStages},
	AccessShaderWrite:              {"shader-write", vk.AccessShaderWriteBit, vk.ImageLayoutGeneral, shaderStages},
	AccessShaderReadWrite:          {"shader-read-write", vk.AccessShaderReadBit | vk.AccessShaderWriteBit, vk.ImageLayoutGeneral, shaderStages},
	AccessColorAttachmentRead:      {"color-read", vk.AccessColorAttachmentReadBit, vk.ImageLayoutColorAttachmentOptimal, vk.PipelineStageColorAttachmentOutputBit},
	AccessColorAttachmentWrite:     {"color-write", vk.AccessColorAttachmentWriteBit, vk.ImageLayoutColorAttachmentOptimal, vk.PipelineStageColorAttachmentOutputBit},
	AccessColorAttachmentReadWrite: {"color-read-write", vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit, vk.ImageLayoutColorAttachmentOptimal, vk.PipelineStageColorAttachmentOutputBit},
	AccessDepthStencilRead:         {"depth-read", vk.AccessDepthStencilAttachmentReadBit, vk.ImageLayoutDepthStencilReadOnlyOptimal, fragmentTestStages},
	AccessDepthStencilWrite:        {"depth-write", vk.AccessDepthStencilAttachmentWriteBit, vk.ImageLayoutDepthStencilAttachmentOptimal, fragmentTestStages},
	AccessDepthStencilReadWrite:    {"depth-read-write", vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, vk.ImageLayoutDepthStencilAttachmentOptimal, fragmentTestStages},
	AccessPresent:                  {"present", 0, vk.ImageLayoutPresentSrc, vk.PipelineStageBottomOfPipeBit},
	AccessIndexRead:                {"index-read", vk.AccessIndexReadBit, vk.ImageLayoutUndefined, vk.PipelineStageVertexInputBit},
	AccessVertexAttributeRead:      {"vertex-read", vk.AccessVertexAttributeReadBit, vk.ImageLayoutUndefined, vk.PipelineStageVertexInputBit},
	AccessUniformRead:              {"uniform-read", vk.AccessUniformReadBit, vk.ImageLayoutUndefined, shaderStages},
	AccessInputAttachmentRead:      {"input-attachment-read", vk.AccessInputAttachmentReadBit, vk.ImageLayoutShaderReadOnlyOptimal, vk.PipelineStageFragmentShaderBit},
}

const shaderAccess = vk.AccessUniformReadBit | vk.AccessShaderReadBit | vk.AccessShaderWriteBit

// stageAccessTable lists the access bits that are meaningful at each stage.
var stageAccessTable = []struct {
	stage  vk.PipelineStageFlagBits
	access vk.AccessFlagBits
}{
	{vk.PipelineStageDrawIndirectBit, vk.AccessIndirectCommandReadBit},
	{vk.PipelineStageVertexInputBit, vk.AccessIndexReadBit | vk.AccessVertexAttributeReadBit},
	{vk.PipelineStageVertexShaderBit, shaderAccess},
	{vk.PipelineStageTessellationControlShaderBit, shaderAccess},
	{vk.PipelineStageTessellationEvaluationShaderBit, shaderAccess},
	{vk.PipelineStageGeometryShaderBit, shaderAccess},
	{vk.PipelineStageFragmentShaderBit, shaderAccess | vk.AccessInputAttachmentReadBit},
	{vk.PipelineStageEarlyFragmentTestsBit, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit},
	{vk.PipelineStageLateFragmentTestsBit, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit},
	{vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit},
	{vk.PipelineStageComputeShaderBit, shaderAccess},
	{vk.PipelineStageTransferBit, vk.AccessTransferReadBit | vk.AccessTransferWriteBit},
	{vk.PipelineStageHostBit, vk.AccessHostReadBit | vk.AccessHostWriteBit},
}

const allAccess = vk.AccessFlagBits(0x1FFFF)

// stageAccessMask is the union of the access bits legal in stages.
func stageAccessMask(stages vk.PipelineStageFlags) vk.AccessFlags {
	bits := vk.PipelineStageFlagBits(stages)
	if bits&(vk.PipelineStageAllGraphicsBit|vk.PipelineStageAllCommandsBit) != 0 {
		return vk.AccessFlags(allAccess)
	}
	var mask vk.AccessFlagBits
	for _, entry := range stageAccessTable {
		if bits&entry.stage != 0 {
			mask |= entry.access
		}
	}
	return vk.AccessFlags(mask)
}

func (a AccessType) String() string {
	if a >= accessTypeCount {
		return "invalid"
	}
	return accessTable[a].name
}

// imageCapable reports whether an image can be in state a. Buffer-only
// states have no image layout.
func (a AccessType) imageCapable() bool {
	switch a {
	case AccessIndexRead, AccessVertexAttributeRead, AccessUniformRead:
		return false
	}
	return a < accessTypeCount
}

func (a AccessType) Layout() vk.ImageLayout {
	return accessTable[a].layout
}

func (a AccessType) AccessMask() vk.AccessFlags {
	return vk.AccessFlags(accessTable[a].access)
}

func (a AccessType) DefaultStages() vk.PipelineStageFlags {
	return vk.PipelineStageFlags(accessTable[a].stages)
}

// barrierScope resolves the stage and access masks on one side of a barrier.
// A zero stage mask selects the access type's default stages.
func barrierScope(a AccessType, stages vk.PipelineStageFlags) (vk.PipelineStageFlags, vk.AccessFlags) {
	if stages == 0 {
		stages = a.DefaultStages()
	}
	return stages, a.AccessMask() & stageAccessMask(stages)
}

// TransitionBuffer moves the whole buffer to the given access type.
func (v *VulkanCommandBuffer) TransitionBuffer(buffer *VulkanBuffer, to AccessType, srcStages, dstStages vk.PipelineStageFlags) bool {
	return v.TransitionBufferRange(buffer, to, 0, vk.WholeSize, srcStages, dstStages)
}

// TransitionBufferRange emits a barrier scoped to [offset, offset+size).
// It does nothing when the buffer is already in the requested state.
func (v *VulkanCommandBuffer) TransitionBufferRange(buffer *VulkanBuffer, to AccessType, offset, size uint64, srcStages, dstStages vk.PipelineStageFlags) bool {
	from := buffer.Access()
	if from == to {
		return false
	}
	srcStages, srcAccess := barrierScope(from, srcStages)
	dstStages, dstAccess := barrierScope(to, dstStages)

	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              buffer.Handle,
		Offset:              vk.DeviceSize(offset),
		Size:                vk.DeviceSize(size),
	}
	v.driver.CmdPipelineBarrier(v.Handle, srcStages, dstStages, []vk.BufferMemoryBarrier{barrier}, nil)
	buffer.setAccess(to)
	core.LogDebug("buffer %s: %s -> %s", buffer.Name, from, to)
	return true
}

// TransitionImage moves every subresource of the image to the given access
// type, changing its layout where the two states disagree. Targets without
// an image layout (AccessNone and the buffer-only states) are rejected.
func (v *VulkanCommandBuffer) TransitionImage(image *VulkanImage, to AccessType, srcStages, dstStages vk.PipelineStageFlags) (bool, error) {
	if to == AccessNone || !to.imageCapable() {
		return false, core.IntegrationError(core.ErrInvalidDescription, "image %s cannot move to %s", image.Name, to)
	}
	from := image.Access()
	if from == to {
		return false, nil
	}
	srcStages, srcAccess := barrierScope(from, srcStages)
	dstStages, dstAccess := barrierScope(to, dstStages)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           from.Layout(),
		NewLayout:           to.Layout(),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image.Handle,
		SubresourceRange:    image.subresourceRange(),
	}
	v.driver.CmdPipelineBarrier(v.Handle, srcStages, dstStages, nil, []vk.ImageMemoryBarrier{barrier})
	image.setAccess(to)
	core.LogDebug("image %s: %s -> %s", image.Name, from, to)
	return true, nil
}
