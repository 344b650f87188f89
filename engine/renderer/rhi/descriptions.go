package rhi

import "github.com/gogpu/gputypes"

// TextureDescription is comparable so callers can detect changes with ==.
type TextureDescription struct {
	Label  string
	Format gputypes.TextureFormat
	Width  uint32
	Height uint32
	Layers uint32
	Usage  gputypes.TextureUsage
}

type BufferDescription struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

type AttachmentDescription struct {
	Format        gputypes.TextureFormat
	LoadOp        gputypes.LoadOp
	StoreOp       gputypes.StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

type RenderPassDescription struct {
	Label            string
	ColorAttachments []AttachmentDescription
	DepthAttachment  *AttachmentDescription
}

type FramebufferDescription struct {
	Label       string
	RenderPass  RenderPassHandle
	Attachments []TextureHandle
	Width       uint32
	Height      uint32
	Layers      uint32
}

type ShaderStage struct {
	// Source is WGSL text.
	Source     string
	EntryPoint string
}

// PipelineDescription describes a graphics or compute pipeline. For a
// compute pipeline only Compute is set.
type PipelineDescription struct {
	Label        string
	Vertex       ShaderStage
	Fragment     *ShaderStage
	Compute      *ShaderStage
	Primitive    gputypes.PrimitiveState
	ColorTargets []gputypes.ColorTargetState
	DepthStencil *gputypes.DepthStencilState
	// RenderPass is filled in when the pipeline is realised against a pass.
	RenderPass RenderPassHandle
}

func (d PipelineDescription) IsCompute() bool {
	return d.Compute != nil
}
