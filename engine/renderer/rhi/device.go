package rhi

import "github.com/gogpu/gputypes"

// SwapchainInfo describes the presentable images of a device.
type SwapchainInfo struct {
	Images      []TextureHandle
	Depth       TextureHandle
	ColorFormat gputypes.TextureFormat
	DepthFormat gputypes.TextureFormat
	Extent      Extent2D
	// PresentLayout is the layout the color image must end a frame in.
	PresentLayout ImageLayout
}

type Frame struct {
	Commands   CommandList
	ImageIndex uint32
	Number     uint64
}

// Device creates and destroys GPU objects and hands out one command list
// per frame. Implementations are not safe for concurrent use unless they
// say otherwise.
type Device interface {
	CreateTexture(desc TextureDescription) (TextureHandle, error)
	DestroyTexture(h TextureHandle)
	CreateBuffer(desc BufferDescription) (BufferHandle, error)
	DestroyBuffer(h BufferHandle)
	CreateRenderPass(desc RenderPassDescription) (RenderPassHandle, error)
	DestroyRenderPass(h RenderPassHandle)
	CreateFramebuffer(desc FramebufferDescription) (FramebufferHandle, error)
	DestroyFramebuffer(h FramebufferHandle)
	CreatePipeline(desc PipelineDescription) (PipelineHandle, error)
	DestroyPipeline(h PipelineHandle)

	Swapchain() SwapchainInfo
	// BeginFrame returns core.ErrSwapchainBooting when the swapchain must be
	// recreated before rendering.
	BeginFrame() (Frame, error)
	EndFrame(f Frame) error
	RecreateSwapchain(width, height uint32) error
	WaitIdle() error
	Destroy()
}

// CommandList records GPU work for one frame.
type CommandList interface {
	BeginRenderPass(pass RenderPassHandle, framebuffer FramebufferHandle, area Rect2D, clears []ClearValue)
	EndRenderPass()
	BindPipeline(p PipelineHandle)
	SetViewport(v Viewport)
	SetScissor(r Rect2D)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
	PipelineBarrier(srcStage, dstStage PipelineStage, memory []MemoryBarrier, images []ImageBarrier)
}
