package vulkan

import (
	vk "github.com/goki/vulkan"
)

type SamplerDesc struct {
	MagFilter   vk.Filter
	MinFilter   vk.Filter
	MipmapMode  vk.SamplerMipmapMode
	AddressMode vk.SamplerAddressMode
	// MaxAnisotropy of zero disables anisotropic filtering.
	MaxAnisotropy float32
	MaxLod        float32
}

func (d SamplerDesc) Hash() uint64 {
	return newHasher().
		u32(uint32(d.MagFilter)).u32(uint32(d.MinFilter)).
		u32(uint32(d.MipmapMode)).u32(uint32(d.AddressMode)).
		f32(d.MaxAnisotropy).f32(d.MaxLod).
		sum()
}

func createSampler(driver Driver, desc SamplerDesc) (vk.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               desc.MagFilter,
		MinFilter:               desc.MinFilter,
		MipmapMode:              desc.MipmapMode,
		AddressModeU:            desc.AddressMode,
		AddressModeV:            desc.AddressMode,
		AddressModeW:            desc.AddressMode,
		AnisotropyEnable:        vkBool(desc.MaxAnisotropy > 0),
		MaxAnisotropy:           desc.MaxAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  0,
		MaxLod:                  desc.MaxLod,
	}
	return driver.CreateSampler(&samplerInfo)
}

// SamplerCache shares one native sampler per distinct SamplerDesc.
type SamplerCache struct {
	driver Driver
	cache  *ObjectCache[Driver, SamplerDesc, vk.Sampler]
}

func NewSamplerCache(driver Driver) *SamplerCache {
	return &SamplerCache{
		driver: driver,
		cache: NewObjectCache("sampler", createSampler, func(d Driver, s vk.Sampler) {
			d.DestroySampler(s)
		}),
	}
}

func (c *SamplerCache) Get(desc SamplerDesc) (vk.Sampler, error) {
	sampler, _, err := c.cache.GetObject(c.driver, desc)
	return sampler, err
}

func (c *SamplerCache) Stats() CacheStats {
	return c.cache.Stats()
}

func (c *SamplerCache) Destroy() {
	c.cache.Cleanup(c.driver)
}
