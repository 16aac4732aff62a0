package vulkan

import (
	"fmt"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
var resultNames = map[vk.Result]string{
	vk.Success:                          "VK_SUCCESS",
	vk.NotReady:                         "VK_NOT_READY",
	vk.Timeout:                          "VK_TIMEOUT",
	vk.EventSet:                         "VK_EVENT_SET",
	vk.EventReset:                       "VK_EVENT_RESET",
	vk.Incomplete:                       "VK_INCOMPLETE",
	vk.Suboptimal:                       "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:             "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:           "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed:        "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:                  "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:             "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:             "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:         "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:           "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:          "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:              "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:          "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:              "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorOutOfPoolMemory:             "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorInvalidExternalHandle:       "VK_ERROR_INVALID_EXTERNAL_HANDLE",
	vk.ErrorFragmentation:               "VK_ERROR_FRAGMENTATION",
	vk.ErrorInvalidDeviceAddress:        "VK_ERROR_INVALID_DEVICE_ADDRESS_EXT",
	vk.ErrorFullScreenExclusiveModeLost: "VK_ERROR_FULL_SCREEN_EXCLUSIVE_MODE_LOST_EXT",
	vk.ErrorUnknown:                     "VK_ERROR_UNKNOWN",
}

func VulkanResultString(result vk.Result) string {
	if name, ok := resultNames[result]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

// Negative codes are errors. Timeout and NotReady are reported by the
// callers that can receive them.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

// ResultError carries the native code of a rejected call.
type ResultError struct {
	Op     string
	Result vk.Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s failed with %s", e.Op, VulkanResultString(e.Result))
}

// checkResult turns a failing vk.Result into an error marked with
// core.ErrVulkanCall, and core.ErrDeviceLost where that applies.
func checkResult(op string, result vk.Result) error {
	if VulkanResultIsSuccess(result) {
		return nil
	}
	var err error = &ResultError{Op: op, Result: result}
	err = errors.Mark(err, core.ErrVulkanCall)
	if result == vk.ErrorDeviceLost {
		err = errors.Mark(err, core.ErrDeviceLost)
	}
	return err
}

// ResultOf extracts the native code from an error produced by checkResult.
func ResultOf(err error) (vk.Result, bool) {
	var re *ResultError
	if errors.As(err, &re) {
		return re.Result, true
	}
	return vk.Success, false
}

func isPoolExhausted(err error) bool {
	res, ok := ResultOf(err)
	return ok && (res == vk.ErrorOutOfPoolMemory || res == vk.ErrorFragmentedPool)
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	for i := range list {
		list[i] = VulkanSafeString(list[i])
	}
	return list
}
