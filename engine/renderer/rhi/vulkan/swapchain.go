package vulkan

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// swapchain is a ring of offscreen color images sharing one depth image.
// Nothing is presented; a frame ends with its color image ready to be
// copied out, hence the TransferSrc present layout.
type swapchain struct {
	images []rhi.TextureHandle
	depth  rhi.TextureHandle
	extent rhi.Extent2D
	// current is the image the next frame renders into.
	current uint32
}

func (d *Device) createSwapchain(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("vulkan: swapchain extent %dx%d", width, height)
	}
	sc := &swapchain{extent: rhi.Extent2D{Width: width, Height: height}}
	for i := uint32(0); i < d.opts.ImageCount; i++ {
		h, err := d.createTexture(rhi.TextureDescription{
			Label:  fmt.Sprintf("swapchain.%d", i),
			Format: d.opts.ColorFormat,
			Width:  width,
			Height: height,
			Layers: 1,
			Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
		})
		if err != nil {
			d.destroySwapchainImages(sc)
			return err
		}
		sc.images = append(sc.images, h)
	}
	depth, err := d.createTexture(rhi.TextureDescription{
		Label:  "swapchain.depth",
		Format: d.opts.DepthFormat,
		Width:  width,
		Height: height,
		Layers: 1,
		Usage:  gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		d.destroySwapchainImages(sc)
		return err
	}
	sc.depth = depth
	d.swapchain = sc
	d.logger.Debug("swapchain created", "width", width, "height", height, "images", len(sc.images))
	return nil
}

func (d *Device) destroySwapchainImages(sc *swapchain) {
	if sc == nil {
		return
	}
	for _, h := range sc.images {
		d.destroyTexture(h)
	}
	if sc.depth.IsValid() {
		d.destroyTexture(sc.depth)
	}
	sc.images = nil
	sc.depth = 0
}

func (sc *swapchain) info(color, depth gputypes.TextureFormat) rhi.SwapchainInfo {
	return rhi.SwapchainInfo{
		Images:        append([]rhi.TextureHandle(nil), sc.images...),
		Depth:         sc.depth,
		ColorFormat:   color,
		DepthFormat:   depth,
		Extent:        sc.extent,
		PresentLayout: rhi.ImageLayoutTransferSrc,
	}
}

func (sc *swapchain) advance() {
	if len(sc.images) > 0 {
		sc.current = (sc.current + 1) % uint32(len(sc.images))
	}
}
