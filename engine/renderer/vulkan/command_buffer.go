package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	driver Driver
}

func NewVulkanCommandBuffer(driver Driver, isPrimary bool) (*VulkanCommandBuffer, error) {
	handle, err := driver.AllocateCommandBuffer(isPrimary)
	if err != nil {
		core.LogError("failed to allocate command buffer: %v", err)
		return nil, err
	}
	return &VulkanCommandBuffer{
		Handle: handle,
		State:  COMMAND_BUFFER_STATE_READY,
		driver: driver,
	}, nil
}

func (v *VulkanCommandBuffer) Free() {
	if v.State == COMMAND_BUFFER_STATE_NOT_ALLOCATED {
		return
	}
	v.driver.FreeCommandBuffer(v.Handle)
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	if v.State != COMMAND_BUFFER_STATE_READY {
		return errors.AssertionFailedf("command buffer begun in state %d", v.State)
	}
	var flags vk.CommandBufferUsageFlags
	if isSingleUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := v.driver.BeginCommandBuffer(v.Handle, flags); err != nil {
		core.LogError("failed to begin command buffer: %v", err)
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return errors.AssertionFailedf("command buffer ended inside a render pass")
	}
	if err := v.driver.EndCommandBuffer(v.Handle); err != nil {
		core.LogError("failed to end command buffer: %v", err)
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// Reset returns the buffer to READY. Only call once its fence has signalled.
func (v *VulkanCommandBuffer) Reset() error {
	if err := v.driver.ResetCommandBuffer(v.Handle); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) IsRecording() bool {
	return v.State == COMMAND_BUFFER_STATE_RECORDING || v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS
}
