// Package rendergraph is a declarative frame graph. Passes declare what
// they read and write through a Builder; Compile orders them, assigns
// attachment load and store ops and derives the barriers between them;
// the Evaluator realises the resources on a device and records every
// frame.
package rendergraph

import (
	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

// InvalidResource is returned for ids that do not exist, e.g. the render
// target of a compute pass.
const InvalidResource = ^ResourceID(0)

type Graph struct {
	ctx    *core.Context
	logger *log.Logger
	name   string

	registry *Registry
	passes   []*Pass

	dirty      Dirty
	generation uint64
	extent     rhi.Extent2D

	swapchainClear rhi.ClearValue
	depthClear     rhi.ClearValue
	presentLayout  rhi.ImageLayout
}

func NewGraph(ctx *core.Context, name string) *Graph {
	return &Graph{
		ctx:            ctx,
		logger:         ctx.Subsystem("rendergraph").With("graph", name),
		name:           name,
		registry:       NewRegistry(ctx),
		dirty:          DirtyPassChanges,
		swapchainClear: rhi.ClearColor(gputypes.ColorBlack),
		depthClear:     rhi.ClearDepthStencil(1, 0),
		presentLayout:  rhi.ImageLayoutPresentSrc,
	}
}

func (g *Graph) Name() string         { return g.name }
func (g *Graph) Registry() *Registry  { return g.registry }
func (g *Graph) Dirty() Dirty         { return g.dirty }
func (g *Graph) ResetDirty()          { g.dirty = DirtyNone }
func (g *Graph) Extent() rhi.Extent2D { return g.extent }

// AddPass registers a graphics pass. Its build callback runs on the next
// Compile.
func (g *Graph) AddPass(name string, build BuildFunc, execute ExecuteFunc) *Pass {
	p := g.addPass(name, PassGraphics, build, execute)
	p.target = g.registry.createTarget(name + "/target")
	return p
}

// AddComputePass registers a pass that runs outside a render pass.
func (g *Graph) AddComputePass(name string, build BuildFunc, execute ExecuteFunc) *Pass {
	p := g.addPass(name, PassCompute, build, execute)
	p.target = InvalidResource
	return p
}

func (g *Graph) addPass(name string, typ PassType, build BuildFunc, execute ExecuteFunc) *Pass {
	p := &Pass{
		name:    name,
		typ:     typ,
		build:   build,
		execute: execute,
		dirty:   true,
	}
	g.passes = append(g.passes, p)
	g.dirty |= DirtyPassChanges
	return p
}

// Pass returns the first pass registered under name.
func (g *Graph) Pass(name string) *Pass {
	for _, p := range g.passes {
		if p.name == name {
			return p
		}
	}
	return nil
}

// Passes returns every registered pass in registration order.
func (g *Graph) Passes() []*Pass {
	return append([]*Pass(nil), g.passes...)
}

// MarkDirty drops the declarations of a pass so its build callback runs
// again on the next Compile.
func (g *Graph) MarkDirty(name string) {
	found := false
	for _, p := range g.passes {
		if p.name == name {
			p.reset()
			found = true
		}
	}
	if !found {
		g.ctx.Fatal(graphErrorf(ErrUnknownPass, "%q in graph %s", name, g.name))
		return
	}
	g.dirty |= DirtyPassChanges
}

func (g *Graph) SetSwapchainClearColor(c gputypes.Color) {
	g.swapchainClear = rhi.ClearColor(c)
	g.dirty |= DirtyPassChanges
}

func (g *Graph) SetSwapchainDepthClear(depth float32, stencil uint32) {
	g.depthClear = rhi.ClearDepthStencil(depth, stencil)
	g.dirty |= DirtyPassChanges
}

// SetPresentLayout sets the layout the swapchain image is left in after
// its last writer. Offscreen devices present from TransferSrc.
func (g *Graph) SetPresentLayout(l rhi.ImageLayout) {
	if g.presentLayout != l {
		g.presentLayout = l
		g.dirty |= DirtyPassChanges
	}
}

// SetFramebufferExtent records a new swapchain size. Swapchain relative
// resources are rebuilt by the next evaluator Build.
func (g *Graph) SetFramebufferExtent(e rhi.Extent2D) {
	if g.extent == e {
		return
	}
	g.extent = e
	g.dirty |= DirtySizeUpdate
}

// SwapchainRecreated forces swapchain relative resources to be rebuilt
// even though the extent did not change, since the images behind the
// swapchain handles did.
func (g *Graph) SwapchainRecreated() {
	g.dirty |= DirtySizeUpdate
}
