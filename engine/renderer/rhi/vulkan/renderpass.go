package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

type renderPass struct {
	Handle vk.RenderPass
	Desc   rhi.RenderPassDescription
}

func attachmentDescription(a rhi.AttachmentDescription) (vk.AttachmentDescription, error) {
	format, err := vkFormat(a.Format)
	if err != nil {
		return vk.AttachmentDescription{}, err
	}
	d := vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vkLoadOp(a.LoadOp),
		StoreOp:        vkStoreOp(a.StoreOp),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vkLayout(a.InitialLayout),
		FinalLayout:    vkLayout(a.FinalLayout),
	}
	if a.Format.HasStencil() {
		d.StencilLoadOp = d.LoadOp
		d.StencilStoreOp = d.StoreOp
	}
	// Loading from an undefined layout is meaningless.
	if d.LoadOp == vk.AttachmentLoadOpLoad && d.InitialLayout == vk.ImageLayoutUndefined {
		d.LoadOp = vk.AttachmentLoadOpDontCare
	}
	return d, nil
}

func createRenderPass(c *Context, desc rhi.RenderPassDescription) (*renderPass, error) {
	var (
		attachments []vk.AttachmentDescription
		colorRefs   []vk.AttachmentReference
	)
	for _, a := range desc.ColorAttachments {
		d, err := attachmentDescription(a)
		if err != nil {
			return nil, fmt.Errorf("render pass %s: %w", desc.Label, err)
		}
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachments = append(attachments, d)
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if desc.DepthAttachment != nil {
		d, err := attachmentDescription(*desc.DepthAttachment)
		if err != nil {
			return nil, fmt.Errorf("render pass %s: %w", desc.Label, err)
		}
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		attachments = append(attachments, d)
	}

	// Graph barriers handle everything between passes; the dependency only
	// orders attachment writes against earlier work in the same queue.
	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
		vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:   vk.SubpassExternal,
		DstSubpass:   0,
		SrcStageMask: stages,
		DstStageMask: stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	rp := &renderPass{Desc: desc}
	err := c.locks.SafeCall(RenderpassManagement, func() error {
		return resultError("vkCreateRenderPass", vk.CreateRenderPass(c.Device, &createInfo, c.Allocator, &rp.Handle))
	})
	if err != nil {
		return nil, fmt.Errorf("render pass %s: %w", desc.Label, err)
	}
	return rp, nil
}

func (rp *renderPass) destroy(c *Context) {
	if rp.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(c.Device, rp.Handle, c.Allocator)
		rp.Handle = vk.NullRenderPass
	}
}

type framebuffer struct {
	Handle vk.Framebuffer
	Desc   rhi.FramebufferDescription
}

func createFramebuffer(c *Context, rp *renderPass, views []vk.ImageView, desc rhi.FramebufferDescription) (*framebuffer, error) {
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          layers,
	}
	fb := &framebuffer{Desc: desc}
	err := c.locks.SafeCall(ResourceManagement, func() error {
		return resultError("vkCreateFramebuffer", vk.CreateFramebuffer(c.Device, &createInfo, c.Allocator, &fb.Handle))
	})
	if err != nil {
		return nil, fmt.Errorf("framebuffer %s: %w", desc.Label, err)
	}
	return fb, nil
}

func (fb *framebuffer) destroy(c *Context) {
	if fb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(c.Device, fb.Handle, c.Allocator)
		fb.Handle = vk.NullFramebuffer
	}
}
