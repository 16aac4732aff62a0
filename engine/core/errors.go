package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// configuration errors: malformed pipeline descriptions, rejected at layout-build time
	ErrInvalidDescription = errors.New("invalid pipeline description")
	// integration errors: always raised through errors.AssertionFailedf
	ErrIncompleteMaterial = errors.New("material bound with unwritten descriptors")
	ErrAllocationTooLarge = errors.New("allocation exceeds the maximum chunk size")
	ErrUnknownDescriptor  = errors.New("unknown descriptor name")
	ErrStaleHandle        = errors.New("stale resource handle")
	// GPU-reported errors
	ErrVulkanCall   = errors.New("vulkan call failed")
	ErrFenceTimeout = errors.New("fence wait timed out")
	ErrDeviceLost   = errors.New("device lost")

	ErrInvalidConfig = errors.New("invalid configuration")
)

// IntegrationError logs a caller bug and returns it. The result satisfies
// both errors.Is(err, mark) and errors.HasAssertionFailure(err).
func IntegrationError(mark error, format string, args ...interface{}) error {
	err := errors.Mark(errors.AssertionFailedf(format, args...), mark)
	LogError("%v", err)
	return err
}
