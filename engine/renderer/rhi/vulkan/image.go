package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

type image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Aspect vk.ImageAspectFlags
	Desc   rhi.TextureDescription
}

func createImage(c *Context, desc rhi.TextureDescription) (*image, error) {
	format, err := vkFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	img := &image{Aspect: vkAspect(desc.Format), Desc: desc}

	imageInfo := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(desc.Usage, desc.Format),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	err = c.locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreateImage", vk.CreateImage(c.Device, &imageInfo, c.Allocator, &img.Handle))
	})
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", desc.Label, err)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(c.Device, img.Handle, &reqs)
	img.Memory, err = c.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.destroy(c)
		return nil, fmt.Errorf("texture %s: %w", desc.Label, err)
	}
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(c.Device, img.Handle, img.Memory, 0)); err != nil {
		img.destroy(c)
		return nil, fmt.Errorf("texture %s: %w", desc.Label, err)
	}

	viewType := vk.ImageViewType2d
	if layers > 1 {
		viewType = vk.ImageViewType2dArray
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: img.Aspect,
			LevelCount: 1,
			LayerCount: layers,
		},
	}
	if err := resultError("vkCreateImageView", vk.CreateImageView(c.Device, &viewInfo, c.Allocator, &img.View)); err != nil {
		img.destroy(c)
		return nil, fmt.Errorf("texture %s: %w", desc.Label, err)
	}
	return img, nil
}

func (img *image) destroy(c *Context) {
	if img.View != vk.NullImageView {
		vk.DestroyImageView(c.Device, img.View, c.Allocator)
		img.View = vk.NullImageView
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(c.Device, img.Handle, c.Allocator)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(c.Device, img.Memory, c.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
}

type buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Desc   rhi.BufferDescription
}

func createBuffer(c *Context, desc rhi.BufferDescription) (*buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s: zero size", desc.Label)
	}
	buf := &buffer{Desc: desc}
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vkBufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	err := c.locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreateBuffer", vk.CreateBuffer(c.Device, &bufferInfo, c.Allocator, &buf.Handle))
	})
	if err != nil {
		return nil, fmt.Errorf("buffer %s: %w", desc.Label, err)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(c.Device, buf.Handle, &reqs)
	buf.Memory, err = c.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		buf.destroy(c)
		return nil, fmt.Errorf("buffer %s: %w", desc.Label, err)
	}
	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(c.Device, buf.Handle, buf.Memory, 0)); err != nil {
		buf.destroy(c)
		return nil, fmt.Errorf("buffer %s: %w", desc.Label, err)
	}
	return buf, nil
}

func (b *buffer) destroy(c *Context) {
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(c.Device, b.Handle, c.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(c.Device, b.Memory, c.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}
