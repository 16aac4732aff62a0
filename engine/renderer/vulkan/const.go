package vulkan

import vk "github.com/goki/vulkan"

/**
 * @brief Descriptor types every pool reserves capacity for. Each entry
 * receives DescriptorsPerType descriptors.
 */
var poolDescriptorTypes = []DescriptorType{
	DescriptorUniformBuffer,
	DescriptorUniformBufferDynamic,
	DescriptorStorageBuffer,
	DescriptorStorageBufferDynamic,
	DescriptorSampler,
	DescriptorCombinedImageSampler,
	DescriptorSampledImage,
	DescriptorStorageImage,
	DescriptorInputAttachment,
}

/**
 * @brief Usage flags of the uniform ring backing buffer.
 */
const uniformRingUsage = vk.BufferUsageUniformBufferBit | vk.BufferUsageStorageBufferBit

/**
 * @brief Memory properties of the uniform ring backing buffer. Coherent so
 * writes through the mapping need no flush.
 */
const uniformRingMemory = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit

/**
 * @brief Fallback for devices that report no uniform offset alignment.
 */
const defaultUniformAlignment uint64 = 256
