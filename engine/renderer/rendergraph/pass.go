package rendergraph

import (
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// BuildFunc declares the resources of a pass. It runs once per dirty
// cycle.
type BuildFunc func(b *Builder)

// ExecuteFunc records the commands of a pass. Handles created during build
// are resolved through the registry.
type ExecuteFunc func(cmd rhi.CommandList, reg *Registry)

// BufferAccess is a buffer read with the usage it is read for.
type BufferAccess struct {
	ID    ResourceID
	Usage gputypes.BufferUsage
}

// Pass is a unit of work in the graph. Its declarations are fixed after
// build until the pass is marked dirty again.
type Pass struct {
	name    string
	typ     PassType
	build   BuildFunc
	execute ExecuteFunc

	inputs        []ResourceID
	outputs       []ResourceID
	bufferInputs  []BufferAccess
	bufferOutputs []ResourceID
	aux           []ResourceID
	target        ResourceID

	swapchainRelative bool
	dirty             bool
}

func (p *Pass) Name() string   { return p.name }
func (p *Pass) Type() PassType { return p.typ }

// Inputs returns the texture ids the pass reads, in declaration order.
func (p *Pass) Inputs() []ResourceID { return slices.Clone(p.inputs) }

// Outputs returns the texture ids the pass writes, in declaration order.
func (p *Pass) Outputs() []ResourceID { return slices.Clone(p.outputs) }

func (p *Pass) BufferInputs() []BufferAccess { return slices.Clone(p.bufferInputs) }
func (p *Pass) BufferOutputs() []ResourceID  { return slices.Clone(p.bufferOutputs) }

// Aux returns the pipelines created by the pass.
func (p *Pass) Aux() []ResourceID { return slices.Clone(p.aux) }

// RenderTarget is the id under which the realised render pass and
// framebuffers of a graphics pass are registered.
func (p *Pass) RenderTarget() ResourceID { return p.target }

func (p *Pass) IsSwapchainRelative() bool { return p.swapchainRelative }
func (p *Pass) IsDirty() bool             { return p.dirty }

// isLonely reports a pass that declared nothing to read or write.
func (p *Pass) isLonely() bool {
	return len(p.inputs) == 0 && len(p.outputs) == 0 &&
		len(p.bufferInputs) == 0 && len(p.bufferOutputs) == 0
}

func (p *Pass) reads(id ResourceID) bool {
	if slices.Contains(p.inputs, id) {
		return true
	}
	for _, b := range p.bufferInputs {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (p *Pass) reset() {
	p.inputs = nil
	p.outputs = nil
	p.bufferInputs = nil
	p.bufferOutputs = nil
	p.aux = nil
	p.swapchainRelative = false
	p.dirty = true
}

// declare runs the build callback. It is an error to run it twice
// without resetting the pass in between.
func (p *Pass) declare(reg *Registry) error {
	if !p.dirty {
		return graphErrorf(ErrPassAlreadyBuilt, "%s", p.name)
	}
	b := &Builder{pass: p, registry: reg}
	if p.build != nil {
		p.build(b)
	}
	p.dirty = false
	if b.err != nil {
		return b.err
	}
	return nil
}
