// Package renderer drives one render graph on one device: it recompiles
// the graph when passes change, realises the plan, and records it into
// every frame the device hands out.
package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rendergraph"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

type Renderer struct {
	mu sync.Mutex

	ctx       *core.Context
	logger    *log.Logger
	device    rhi.Device
	graph     *rendergraph.Graph
	evaluator *rendergraph.Evaluator
	plan      *rendergraph.Plan

	// frames counts the frames actually submitted, skipped ones excluded.
	frames   uint64
	skipped  uint64
	shutdown bool
}

// New takes ownership of device. The graph starts empty; passes are added
// through Graph before the first DrawFrame.
func New(ctx *core.Context, device rhi.Device) *Renderer {
	r := &Renderer{
		ctx:    ctx,
		logger: ctx.Subsystem("renderer"),
		device: device,
		graph:  rendergraph.NewGraph(ctx, "main"),
	}
	r.evaluator = rendergraph.NewEvaluator(ctx, r.graph, device)

	sc := device.Swapchain()
	r.graph.SetPresentLayout(sc.PresentLayout)
	r.graph.SetFramebufferExtent(sc.Extent)
	r.ApplySettings(ctx.Config.Renderer)
	r.logger.Debug("renderer created", "images", len(sc.Images), "extent", fmt.Sprintf("%dx%d", sc.Extent.Width, sc.Extent.Height))
	return r
}

func (r *Renderer) Graph() *rendergraph.Graph { return r.graph }
func (r *Renderer) Device() rhi.Device        { return r.device }

// Plan returns the plan recorded by the last frame, nil before the first.
func (r *Renderer) Plan() *rendergraph.Plan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plan
}

// Frames returns how many frames were submitted and how many were skipped
// while the swapchain was being recreated.
func (r *Renderer) Frames() (submitted, skipped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames, r.skipped
}

// ApplySettings pushes the swapchain clear values of the configuration
// into the graph.
func (r *Renderer) ApplySettings(cfg core.RendererSection) {
	c := cfg.ClearColor
	r.graph.SetSwapchainClearColor(gputypes.Color{R: c[0], G: c[1], B: c[2], A: c[3]})
	r.graph.SetSwapchainDepthClear(cfg.DepthClear, 0)
}

// Resize recreates the swapchain. A zero extent means the window is
// minimised and leaves everything untouched.
func (r *Renderer) Resize(width, height uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resize(width, height)
}

func (r *Renderer) resize(width, height uint32) error {
	if width == 0 || height == 0 {
		r.logger.Debug("ignoring resize to an empty extent", "width", width, "height", height)
		return nil
	}
	if err := r.device.RecreateSwapchain(width, height); err != nil {
		return fmt.Errorf("failed to recreate swapchain: %w", err)
	}
	r.graph.SetFramebufferExtent(r.device.Swapchain().Extent)
	r.graph.SwapchainRecreated()
	r.logger.Info("swapchain resized", "width", width, "height", height)
	return nil
}

// prepare recompiles and rebuilds whatever the graph marked dirty.
func (r *Renderer) prepare() error {
	dirty := r.graph.Dirty()
	if dirty == rendergraph.DirtyNone && r.plan != nil {
		return nil
	}
	if dirty.Has(rendergraph.DirtyPassChanges) || r.plan == nil {
		r.plan = r.graph.Compile()
	}
	if err := r.evaluator.Build(r.plan, r.graph.Extent(), dirty.Has(rendergraph.DirtySizeUpdate)); err != nil {
		return fmt.Errorf("failed to build graph %s: %w", r.graph.Name(), err)
	}
	r.logger.Debug("graph rebuilt", "dirty", dirty, "passes", r.plan.Len())
	r.graph.ResetDirty()
	return nil
}

// DrawFrame records and submits one frame. A frame the device refuses
// because its swapchain is out of date is skipped after the swapchain is
// recreated; the next call renders at the new size.
func (r *Renderer) DrawFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return errors.New("renderer: draw after shutdown")
	}
	if err := r.prepare(); err != nil {
		return err
	}

	frame, err := r.device.BeginFrame()
	if errors.Is(err, core.ErrSwapchainBooting) {
		r.skipped++
		ext := r.device.Swapchain().Extent
		return r.resize(ext.Width, ext.Height)
	}
	if err != nil {
		return fmt.Errorf("failed to begin frame: %w", err)
	}

	if err := r.evaluator.Execute(frame.Commands, r.plan, frame.ImageIndex); err != nil {
		err = fmt.Errorf("failed to record frame %d: %w", frame.Number, err)
		// recording stops between passes, so the partial frame can be closed
		if endErr := r.device.EndFrame(frame); endErr != nil {
			return errors.Join(err, fmt.Errorf("failed to end frame %d: %w", frame.Number, endErr))
		}
		r.evaluator.EndFrame()
		return err
	}
	if err := r.device.EndFrame(frame); err != nil {
		return fmt.Errorf("failed to end frame %d: %w", frame.Number, err)
	}
	r.evaluator.EndFrame()
	r.frames++
	return nil
}

// Shutdown releases the graph's objects and then the device. It is safe
// to call more than once.
func (r *Renderer) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return
	}
	r.shutdown = true
	r.evaluator.Destroy()
	r.device.Destroy()
	r.logger.Debug("renderer shut down", "frames", r.frames, "skipped", r.skipped)
}
