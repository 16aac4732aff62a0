package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-runtime/engine/core"
)

type VulkanImage struct {
	Name   string
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Width  uint32
	Height uint32
	Aspect vk.ImageAspectFlags

	// external images (swapchain, imported) own neither memory nor handle.
	external bool
	access   AccessType
}

type ImageDesc struct {
	Name   string
	Format vk.Format
	Width  uint32
	Height uint32
	Usage  vk.ImageUsageFlags
	Aspect vk.ImageAspectFlags
}

func NewVulkanImage(driver Driver, desc ImageDesc) (*VulkanImage, error) {
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         desc.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	handle, memory, err := driver.CreateImage(&imageCreateInfo, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		core.LogError("creating image %s (%dx%d): %v", desc.Name, desc.Width, desc.Height, err)
		return nil, err
	}
	image := &VulkanImage{
		Name:   desc.Name,
		Handle: handle,
		Memory: memory,
		Format: desc.Format,
		Width:  desc.Width,
		Height: desc.Height,
		Aspect: desc.Aspect,
		access: AccessNone,
	}
	if err := image.createView(driver); err != nil {
		driver.DestroyImage(handle, memory)
		return nil, err
	}
	return image, nil
}

// WrapExternalImage tracks an image owned elsewhere, such as a swapchain image.
func WrapExternalImage(name string, handle vk.Image, view vk.ImageView, format vk.Format, width, height uint32, initial AccessType) *VulkanImage {
	return &VulkanImage{
		Name:     name,
		Handle:   handle,
		View:     view,
		Format:   format,
		Width:    width,
		Height:   height,
		Aspect:   vk.ImageAspectFlags(vk.ImageAspectColorBit),
		external: true,
		access:   initial,
	}
}

func (i *VulkanImage) createView(driver Driver) error {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            i.Handle,
		ViewType:         vk.ImageViewType2d,
		Format:           i.Format,
		SubresourceRange: i.subresourceRange(),
	}
	view, err := driver.CreateImageView(&viewCreateInfo)
	if err != nil {
		return err
	}
	i.View = view
	return nil
}

func (i *VulkanImage) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     i.Aspect,
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func (i *VulkanImage) Access() AccessType {
	return i.access
}

func (i *VulkanImage) setAccess(a AccessType) {
	i.access = a
}

func (i *VulkanImage) IsExternal() bool {
	return i.external
}

func (i *VulkanImage) Destroy(driver Driver) {
	if i.external {
		return
	}
	if i.View != vk.NullImageView {
		driver.DestroyImageView(i.View)
		i.View = vk.NullImageView
	}
	driver.DestroyImage(i.Handle, i.Memory)
	i.Handle = vk.NullImage
	i.Memory = vk.NullDeviceMemory
}
