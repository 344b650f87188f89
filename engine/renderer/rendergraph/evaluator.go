package rendergraph

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-framegraph/engine/containers"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

const retireQueueSize = 256

type retired struct {
	frame   uint64
	label   string
	destroy func()
}

type realTexture struct {
	handle rhi.TextureHandle
	// shape is the description without its label.
	shape rhi.TextureDescription
}

type realBuffer struct {
	handle rhi.BufferHandle
	shape  rhi.BufferDescription
}

type realTarget struct {
	key    string
	target *RenderTarget
}

type realPipeline struct {
	handle     rhi.PipelineHandle
	renderPass rhi.RenderPassHandle
	version    uint64
}

// Evaluator realises the resources of a plan on a device and records the
// plan into a command list every frame. Objects it replaces are destroyed
// once the frames that may still use them have completed.
type Evaluator struct {
	device         rhi.Device
	graph          *Graph
	registry       *Registry
	logger         *log.Logger
	framesInFlight uint64

	frame   uint64
	retired *containers.RingQueue[retired]

	textures  map[ResourceID]realTexture
	buffers   map[ResourceID]realBuffer
	targets   map[ResourceID]realTarget
	pipelines map[ResourceID]realPipeline
}

func NewEvaluator(ctx *core.Context, graph *Graph, device rhi.Device) *Evaluator {
	return &Evaluator{
		device:         device,
		graph:          graph,
		registry:       graph.registry,
		logger:         ctx.Subsystem("evaluator").With("graph", graph.name),
		framesInFlight: uint64(max(ctx.Config.Application.FramesInFlight, 1)),
		retired:        containers.NewRingQueue[retired](retireQueueSize),
		textures:       make(map[ResourceID]realTexture),
		buffers:        make(map[ResourceID]realBuffer),
		targets:        make(map[ResourceID]realTarget),
		pipelines:      make(map[ResourceID]realPipeline),
	}
}

// Build creates or refreshes every device object the plan needs. With
// force set, objects of swapchain relative passes are recreated even if
// their description did not change.
func (e *Evaluator) Build(plan *Plan, extent rhi.Extent2D, force bool) error {
	sc := e.device.Swapchain()
	e.registry.setSwapchainSpecs(sc, e.graph.swapchainClear, e.graph.depthClear)
	if len(sc.Images) > 0 {
		e.registry.assign(SwapchainColor, RealHandle{Texture: sc.Images[0]})
	}
	if sc.Depth.IsValid() {
		e.registry.assign(SwapchainDepth, RealHandle{Texture: sc.Depth})
	}

	var ready []ResourceID
	usage := e.textureUsage(plan)
	// a resource written by several passes is realised once per build
	built := make(map[ResourceID]bool)
	for _, cp := range plan.Passes {
		for _, out := range cp.Outputs {
			if built[out.ID] {
				continue
			}
			built[out.ID] = true
			created, err := e.buildTexture(out.ID, extent, usage[out.ID], force)
			if err != nil {
				return err
			}
			if created {
				ready = append(ready, out.ID)
			}
		}
		for _, out := range cp.BufferOutputs {
			if built[out.ID] {
				continue
			}
			built[out.ID] = true
			created, err := e.buildBuffer(out.ID, plan)
			if err != nil {
				return err
			}
			if created {
				ready = append(ready, out.ID)
			}
		}
	}

	for _, cp := range plan.Passes {
		if cp.Pass.typ != PassGraphics || len(cp.Outputs) == 0 {
			continue
		}
		created, err := e.buildTarget(cp, sc, extent, force)
		if err != nil {
			return err
		}
		if created {
			ready = append(ready, cp.Pass.target)
		}
	}

	for _, cp := range plan.Passes {
		for _, id := range cp.Pass.aux {
			created, err := e.buildPipeline(cp, id)
			if err != nil {
				return err
			}
			if created {
				ready = append(ready, id)
			}
		}
	}

	e.collect(plan)
	for _, id := range ready {
		e.registry.realize(id, e.registry.resources[id].real)
	}
	e.logger.Debug("graph realised", "passes", plan.Len(), "created", len(ready), "extent", fmt.Sprintf("%dx%d", extent.Width, extent.Height), "force", force)
	return nil
}

// collect retires objects of resources the plan no longer uses, e.g.
// after a pass stopped writing an attachment.
func (e *Evaluator) collect(plan *Plan) {
	used := make(map[ResourceID]bool)
	for _, cp := range plan.Passes {
		for _, out := range cp.Outputs {
			used[out.ID] = true
		}
		for _, out := range cp.BufferOutputs {
			used[out.ID] = true
		}
		if cp.Pass.typ == PassGraphics && len(cp.Outputs) > 0 {
			used[cp.Pass.target] = true
		}
		for _, id := range cp.Pass.aux {
			used[id] = true
		}
	}
	for id, t := range e.textures {
		if !used[id] {
			old := t.handle
			e.retire(e.registry.Name(id), func() { e.device.DestroyTexture(old) })
			delete(e.textures, id)
			e.registry.unrealize(id)
		}
	}
	for id, b := range e.buffers {
		if !used[id] {
			old := b.handle
			e.retire(e.registry.Name(id), func() { e.device.DestroyBuffer(old) })
			delete(e.buffers, id)
			e.registry.unrealize(id)
		}
	}
	for id, t := range e.targets {
		if !used[id] {
			old := t.target
			e.retire(e.registry.Name(id), func() { e.destroyTarget(old) })
			delete(e.targets, id)
			e.registry.unrealize(id)
		}
	}
	for id, p := range e.pipelines {
		if !used[id] {
			old := p.handle
			e.retire(e.registry.Name(id), func() { e.device.DestroyPipeline(old) })
			delete(e.pipelines, id)
			e.registry.unrealize(id)
		}
	}
}

// textureUsage collects how every transient texture of the plan is used.
func (e *Evaluator) textureUsage(plan *Plan) map[ResourceID]gputypes.TextureUsage {
	usage := make(map[ResourceID]gputypes.TextureUsage)
	for _, cp := range plan.Passes {
		for _, out := range cp.Outputs {
			if cp.Pass.typ == PassCompute {
				usage[out.ID] |= gputypes.TextureUsageStorageBinding
			} else {
				usage[out.ID] |= gputypes.TextureUsageRenderAttachment
			}
		}
		for _, in := range cp.Inputs {
			usage[in.ID] |= gputypes.TextureUsageTextureBinding
		}
	}
	return usage
}

func (e *Evaluator) buildTexture(id ResourceID, extent rhi.Extent2D, usage gputypes.TextureUsage, force bool) (bool, error) {
	if e.registry.IsImported(id) {
		return false, nil
	}
	spec := e.registry.Attachment(id)
	size := spec.Extent(extent)
	shape := rhi.TextureDescription{
		Format: spec.Format,
		Width:  size.Width,
		Height: size.Height,
		Layers: max(spec.Layers, 1),
		Usage:  usage,
	}
	current, ok := e.textures[id]
	if ok && current.shape == shape && !(force && spec.Size == SizeSwapchainRelative) {
		return false, nil
	}

	desc := shape
	desc.Label = fmt.Sprintf("%s-%s", e.registry.Name(id), uuid.NewString()[:8])
	h, err := e.device.CreateTexture(desc)
	if err != nil {
		return false, fmt.Errorf("failed to create texture %s: %w", e.registry.Name(id), err)
	}
	if ok {
		old := current.handle
		e.retire(e.registry.Name(id), func() { e.device.DestroyTexture(old) })
	}
	e.textures[id] = realTexture{handle: h, shape: shape}
	e.registry.assign(id, RealHandle{Texture: h})
	return true, nil
}

func (e *Evaluator) buildBuffer(id ResourceID, plan *Plan) (bool, error) {
	if e.registry.IsImported(id) {
		return false, nil
	}
	spec := e.registry.BufferSpec(id)
	shape := rhi.BufferDescription{
		Size:  spec.Size,
		Usage: spec.Usage | gputypes.BufferUsageStorage,
	}
	for _, cp := range plan.Passes {
		for _, in := range cp.BufferInputs {
			if in.ID == id {
				shape.Usage |= in.Usage
			}
		}
	}
	current, ok := e.buffers[id]
	if ok && current.shape == shape {
		return false, nil
	}

	desc := shape
	desc.Label = fmt.Sprintf("%s-%s", e.registry.Name(id), uuid.NewString()[:8])
	h, err := e.device.CreateBuffer(desc)
	if err != nil {
		return false, fmt.Errorf("failed to create buffer %s: %w", e.registry.Name(id), err)
	}
	if ok {
		old := current.handle
		e.retire(e.registry.Name(id), func() { e.device.DestroyBuffer(old) })
	}
	e.buffers[id] = realBuffer{handle: h, shape: shape}
	e.registry.assign(id, RealHandle{Buffer: h})
	return true, nil
}

type targetAttachment struct {
	id     ResourceID
	handle rhi.TextureHandle
	size   rhi.Extent2D
}

func (e *Evaluator) buildTarget(cp *CompiledPass, sc rhi.SwapchainInfo, fbExtent rhi.Extent2D, force bool) (bool, error) {
	p := cp.Pass
	desc := rhi.RenderPassDescription{Label: p.name}
	var colors, depth []targetAttachment
	for _, out := range cp.Outputs {
		a := rhi.AttachmentDescription{
			Format:        e.registry.Attachment(out.ID).Format,
			LoadOp:        out.LoadOp,
			StoreOp:       out.StoreOp,
			InitialLayout: out.SrcLayout,
			FinalLayout:   out.FinalLayout,
		}
		h, err := e.registry.get(out.ID)
		if err != nil {
			return false, err
		}
		ta := targetAttachment{id: out.ID, handle: h.Texture}
		switch {
		case out.ID == SwapchainColor || out.ID == SwapchainDepth:
			ta.size = sc.Extent
		case e.registry.IsImported(out.ID):
			spec := e.registry.Attachment(out.ID)
			if spec.Format == gputypes.TextureFormatUndefined {
				return false, graphErrorf(ErrInvalidAttachment, "pass %s writes import %s without a format",
					p.name, e.registry.Name(out.ID))
			}
			if spec.Size == SizeFixed && spec.Width > 0 && spec.Height > 0 {
				ta.size = rhi.Extent2D{Width: spec.Width, Height: spec.Height}
			}
		default:
			shape := e.textures[out.ID].shape
			ta.size = rhi.Extent2D{Width: shape.Width, Height: shape.Height}
		}
		if out.Type == AttachmentDepth {
			if desc.DepthAttachment != nil {
				return false, graphErrorf(ErrInvalidAttachment, "pass %s writes more than one depth attachment", p.name)
			}
			desc.DepthAttachment = &a
			depth = append(depth, ta)
		} else {
			desc.ColorAttachments = append(desc.ColorAttachments, a)
			colors = append(colors, ta)
		}
	}

	// framebuffers list color attachments before depth
	attachments := append(colors, depth...)
	var extent rhi.Extent2D
	swapchain := -1
	views := make([]rhi.TextureHandle, len(attachments))
	for i, ta := range attachments {
		views[i] = ta.handle
		if ta.id == SwapchainColor {
			swapchain = i
		}
		if ta.size == (rhi.Extent2D{}) {
			continue
		}
		if extent == (rhi.Extent2D{}) {
			extent = ta.size
		} else if ta.size != extent {
			return false, graphErrorf(ErrInvalidAttachment, "pass %s mixes attachment sizes %dx%d and %dx%d",
				p.name, extent.Width, extent.Height, ta.size.Width, ta.size.Height)
		}
	}
	if extent == (rhi.Extent2D{}) {
		extent = fbExtent
	}

	images := []rhi.TextureHandle{0}
	if swapchain >= 0 {
		images = sc.Images
	}
	key := fmt.Sprintf("%+v|%+v|%v|%v|%v", desc.ColorAttachments, derefAttachment(desc.DepthAttachment), views, extent, images)
	current, ok := e.targets[p.target]
	if ok && current.key == key && !(force && p.swapchainRelative) {
		return false, nil
	}

	rp, err := e.device.CreateRenderPass(desc)
	if err != nil {
		return false, fmt.Errorf("failed to create render pass for %s: %w", p.name, err)
	}
	target := &RenderTarget{RenderPass: rp, Extent: extent}
	for i, img := range images {
		fbViews := append([]rhi.TextureHandle(nil), views...)
		if swapchain >= 0 {
			fbViews[swapchain] = img
		}
		fb, err := e.device.CreateFramebuffer(rhi.FramebufferDescription{
			Label:       fmt.Sprintf("%s.%d", p.name, i),
			RenderPass:  rp,
			Attachments: fbViews,
			Width:       extent.Width,
			Height:      extent.Height,
			Layers:      1,
		})
		if err != nil {
			e.destroyTarget(target)
			return false, fmt.Errorf("failed to create framebuffer %d for %s: %w", i, p.name, err)
		}
		target.Framebuffers = append(target.Framebuffers, fb)
	}

	if ok {
		old := current.target
		e.retire(p.name, func() { e.destroyTarget(old) })
	}
	e.targets[p.target] = realTarget{key: key, target: target}
	e.registry.assign(p.target, RealHandle{Target: target})
	return true, nil
}

func derefAttachment(a *rhi.AttachmentDescription) rhi.AttachmentDescription {
	if a == nil {
		return rhi.AttachmentDescription{}
	}
	return *a
}

func (e *Evaluator) destroyTarget(t *RenderTarget) {
	for _, fb := range t.Framebuffers {
		e.device.DestroyFramebuffer(fb)
	}
	e.device.DestroyRenderPass(t.RenderPass)
}

func (e *Evaluator) buildPipeline(cp *CompiledPass, id ResourceID) (bool, error) {
	desc, version := e.registry.pipelineDescription(id)
	var rp rhi.RenderPassHandle
	if cp.Pass.typ == PassGraphics {
		t, ok := e.targets[cp.Pass.target]
		if !ok {
			return false, graphErrorf(ErrInvalidAttachment, "pass %s creates a graphics pipeline without attachments", cp.Pass.name)
		}
		rp = t.target.RenderPass
	}
	current, ok := e.pipelines[id]
	if ok && current.renderPass == rp && current.version == version {
		return false, nil
	}

	desc.RenderPass = rp
	h, err := e.device.CreatePipeline(desc)
	if err != nil {
		return false, fmt.Errorf("failed to create pipeline %s: %w", e.registry.Name(id), err)
	}
	if ok {
		old := current.handle
		e.retire(e.registry.Name(id), func() { e.device.DestroyPipeline(old) })
	}
	e.pipelines[id] = realPipeline{handle: h, renderPass: rp, version: version}
	e.registry.assign(id, RealHandle{Pipeline: h})
	return true, nil
}

// Execute records the plan for one frame.
func (e *Evaluator) Execute(cmd rhi.CommandList, plan *Plan, imageIndex uint32) error {
	sc := e.device.Swapchain()
	if len(sc.Images) > 0 {
		e.registry.assign(SwapchainColor, RealHandle{Texture: sc.Images[int(imageIndex)%len(sc.Images)]})
	}

	for _, cp := range plan.Passes {
		if err := e.barrier(cmd, cp.PreBarrier); err != nil {
			return fmt.Errorf("pass %s: %w", cp.Pass.name, err)
		}

		var target *RenderTarget
		if cp.Pass.typ == PassGraphics && len(cp.Outputs) > 0 {
			h, err := e.registry.get(cp.Pass.target)
			if err != nil {
				return fmt.Errorf("pass %s: %w", cp.Pass.name, err)
			}
			target = h.Target
		}
		if target != nil {
			area := rhi.Rect2D{Extent: target.Extent}
			cmd.BeginRenderPass(target.RenderPass, target.Framebuffer(imageIndex), area, clearValues(cp.Outputs))
			cmd.SetViewport(rhi.FullViewport(target.Extent))
			cmd.SetScissor(area)
		}
		if cp.Pass.execute != nil {
			cp.Pass.execute(cmd, e.registry)
		}
		if target != nil {
			cmd.EndRenderPass()
		}

		if err := e.barrier(cmd, cp.PostBarrier); err != nil {
			return fmt.Errorf("pass %s: %w", cp.Pass.name, err)
		}
	}
	return nil
}

// clearValues lists clears in framebuffer attachment order.
func clearValues(outputs []Output) []rhi.ClearValue {
	clears := make([]rhi.ClearValue, 0, len(outputs))
	for _, out := range outputs {
		if out.Type == AttachmentColor {
			clears = append(clears, out.Clear)
		}
	}
	for _, out := range outputs {
		if out.Type == AttachmentDepth {
			clears = append(clears, out.Clear)
		}
	}
	return clears
}

func (e *Evaluator) barrier(cmd rhi.CommandList, b Barrier) error {
	if !b.Enabled {
		return nil
	}
	images := make([]rhi.ImageBarrier, 0, len(b.ImageBarriers))
	for _, ib := range b.ImageBarriers {
		h, err := e.registry.get(ib.ID)
		if err != nil {
			return err
		}
		images = append(images, rhi.ImageBarrier{
			Texture:   h.Texture,
			SrcLayout: ib.SrcLayout,
			DstLayout: ib.DstLayout,
			SrcAccess: ib.SrcAccess,
			DstAccess: ib.DstAccess,
		})
	}
	cmd.PipelineBarrier(b.SrcStage, b.DstStage, b.MemoryBarriers, images)
	return nil
}

func (e *Evaluator) retire(label string, destroy func()) {
	r := retired{frame: e.frame, label: label, destroy: destroy}
	if err := e.retired.Enqueue(r); err != nil {
		if !errors.Is(err, containers.ErrQueueFull) {
			e.logger.Error("failed to retire object", "object", label, "err", err)
			return
		}
		e.logger.Warn("retire queue full, waiting for the device", "size", retireQueueSize)
		if err := e.device.WaitIdle(); err != nil {
			e.logger.Error("failed to wait for the device", "err", err)
		}
		e.drain(^uint64(0))
		_ = e.retired.Enqueue(r)
	}
}

// drain destroys every object retired before frame limit.
func (e *Evaluator) drain(limit uint64) int {
	n := 0
	for !e.retired.IsEmpty() {
		r, _ := e.retired.Peek()
		if r.frame >= limit {
			break
		}
		_, _ = e.retired.Dequeue()
		r.destroy()
		n++
	}
	return n
}

// EndFrame advances the frame counter and destroys objects no frame in
// flight can still reference.
func (e *Evaluator) EndFrame() {
	e.frame++
	if e.frame >= e.framesInFlight {
		if n := e.drain(e.frame - e.framesInFlight + 1); n > 0 {
			e.logger.Debug("destroyed retired objects", "count", n, "frame", e.frame)
		}
	}
}

// Pending returns how many retired objects wait for destruction.
func (e *Evaluator) Pending() int {
	return e.retired.Len()
}

// Destroy releases every object the evaluator created. Imported resources
// are left alone.
func (e *Evaluator) Destroy() {
	if err := e.device.WaitIdle(); err != nil {
		e.logger.Error("failed to wait for the device", "err", err)
	}
	e.drain(^uint64(0))
	for id, p := range e.pipelines {
		e.device.DestroyPipeline(p.handle)
		e.registry.unrealize(id)
	}
	for id, t := range e.targets {
		e.destroyTarget(t.target)
		e.registry.unrealize(id)
	}
	for id, b := range e.buffers {
		e.device.DestroyBuffer(b.handle)
		e.registry.unrealize(id)
	}
	for id, t := range e.textures {
		e.device.DestroyTexture(t.handle)
		e.registry.unrealize(id)
	}
	clear(e.pipelines)
	clear(e.targets)
	clear(e.buffers)
	clear(e.textures)
}
