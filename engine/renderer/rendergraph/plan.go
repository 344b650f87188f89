package rendergraph

import (
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// Output is a resolved attachment of a compiled pass.
type Output struct {
	ID      ResourceID
	Type    AttachmentType
	Format  gputypes.TextureFormat
	LoadOp  gputypes.LoadOp
	StoreOp gputypes.StoreOp
	Clear   rhi.ClearValue
	// SrcLayout is the layout the texture is in when the pass begins.
	SrcLayout rhi.ImageLayout
	// DstLayout is the layout the pass writes it in.
	DstLayout rhi.ImageLayout
	// FinalLayout is the layout the texture is left in after the pass.
	FinalLayout rhi.ImageLayout
}

type TextureInput struct {
	ID        ResourceID
	SrcLayout rhi.ImageLayout
	DstLayout rhi.ImageLayout
}

type BufferInput struct {
	ID     ResourceID
	Usage  gputypes.BufferUsage
	Stage  rhi.PipelineStage
	Access rhi.Access
}

type BufferOutput struct {
	ID     ResourceID
	Stage  rhi.PipelineStage
	Access rhi.Access
}

// ImageBarrier is a layout transition of a graph resource. It becomes an
// rhi.ImageBarrier once the id is resolved.
type ImageBarrier struct {
	ID        ResourceID
	SrcLayout rhi.ImageLayout
	DstLayout rhi.ImageLayout
	SrcAccess rhi.Access
	DstAccess rhi.Access
}

// Barrier is the synchronisation issued before or after a pass.
type Barrier struct {
	Enabled        bool
	SrcStage       rhi.PipelineStage
	DstStage       rhi.PipelineStage
	MemoryBarriers []rhi.MemoryBarrier
	ImageBarriers  []ImageBarrier
}

// CompiledPass is a pass with everything the executor needs resolved.
type CompiledPass struct {
	Pass          *Pass
	Outputs       []Output
	Inputs        []TextureInput
	BufferInputs  []BufferInput
	BufferOutputs []BufferOutput
	PreBarrier    Barrier
	PostBarrier   Barrier
}

func (c *CompiledPass) Name() string { return c.Pass.name }

// Output returns the resolved output for id.
func (c *CompiledPass) Output(id ResourceID) (Output, bool) {
	for _, o := range c.Outputs {
		if o.ID == id {
			return o, true
		}
	}
	return Output{}, false
}

// Plan is the ordered result of a compile. Producers always precede their
// consumers.
type Plan struct {
	Passes []*CompiledPass
	// Generation increases with every compile of the owning graph.
	Generation uint64
}

func (p *Plan) Len() int { return len(p.Passes) }

// Names returns the pass names in execution order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Passes))
	for i, cp := range p.Passes {
		names[i] = cp.Pass.name
	}
	return names
}

// Pass finds a compiled pass by name.
func (p *Plan) Pass(name string) *CompiledPass {
	for _, cp := range p.Passes {
		if cp.Pass.name == name {
			return cp
		}
	}
	return nil
}
