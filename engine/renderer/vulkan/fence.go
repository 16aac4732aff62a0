package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool

	driver Driver
}

func NewFence(driver Driver, createSignaled bool) (*VulkanFence, error) {
	handle, err := driver.CreateFence(createSignaled)
	if err != nil {
		core.LogError("failed to create fence: %v", err)
		return nil, err
	}
	return &VulkanFence{
		Handle: handle,
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
		driver:     driver,
	}, nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != vk.NullFence {
		vf.driver.DestroyFence(vf.Handle)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence signals. Device loss is returned marked with
// core.ErrDeviceLost and must be treated as fatal by the caller.
func (vf *VulkanFence) Wait(timeoutNs uint64) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	result := vf.driver.WaitForFence(vf.Handle, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return errors.Mark(errors.Newf("fence wait exceeded %d ns", timeoutNs), core.ErrFenceTimeout)
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(result))
	}
	return checkResult("vkWaitForFences", result)
}

func (vf *VulkanFence) Reset() error {
	if vf.IsSignaled {
		if err := vf.driver.ResetFence(vf.Handle); err != nil {
			core.LogError("failed to reset fence: %v", err)
			return err
		}
		vf.IsSignaled = false
	}
	return nil
}
