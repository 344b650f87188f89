// Package rhi is the contract between the render graph and a GPU device.
// The graph only ever talks to a Device and a CommandList; backends live in
// sub-packages.
package rhi

// Handles are opaque device object ids. Zero is never a valid handle.
type (
	TextureHandle     uint32
	BufferHandle      uint32
	RenderPassHandle  uint32
	FramebufferHandle uint32
	PipelineHandle    uint32
)

func (h TextureHandle) IsValid() bool     { return h != 0 }
func (h BufferHandle) IsValid() bool      { return h != 0 }
func (h RenderPassHandle) IsValid() bool  { return h != 0 }
func (h FramebufferHandle) IsValid() bool { return h != 0 }
func (h PipelineHandle) IsValid() bool    { return h != 0 }
