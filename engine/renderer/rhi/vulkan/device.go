// Package vulkan implements rhi.Device on top of goki/vulkan. The device
// renders offscreen: it owns its own ring of color images instead of a
// surface swapchain, which keeps it usable on machines without a display.
package vulkan

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

type Options struct {
	AppName       string
	Width, Height uint32
	// ImageCount is the number of offscreen swapchain images.
	ImageCount     uint32
	FramesInFlight uint32
	ColorFormat    gputypes.TextureFormat
	DepthFormat    gputypes.TextureFormat
}

func DefaultOptions() Options {
	return Options{
		AppName:        "anima",
		Width:          1280,
		Height:         720,
		ImageCount:     3,
		FramesInFlight: 2,
		ColorFormat:    gputypes.TextureFormatBGRA8Unorm,
		DepthFormat:    gputypes.TextureFormatDepth32Float,
	}
}

type frameSlot struct {
	commands *CommandList
	fence    *Fence
}

// Device is safe for concurrent object creation. Recording a command
// list must not overlap with destroying the objects it references.
type Device struct {
	mu     sync.Mutex
	ctx    *Context
	logger *log.Logger
	opts   Options

	next         uint32
	textures     map[rhi.TextureHandle]*image
	buffers      map[rhi.BufferHandle]*buffer
	renderPasses map[rhi.RenderPassHandle]*renderPass
	framebuffers map[rhi.FramebufferHandle]*framebuffer
	pipelines    map[rhi.PipelineHandle]*pipeline

	swapchain *swapchain
	stale     bool

	slots  []frameSlot
	slot   int
	number uint64
	inUse  bool
}

var _ rhi.Device = (*Device)(nil)

// New brings up an instance, a logical device and the offscreen
// swapchain. It fails when no vulkan loader or GPU is available.
func New(ctx *core.Context, opts Options) (*Device, error) {
	if opts.ImageCount == 0 {
		opts.ImageCount = 1
	}
	if opts.FramesInFlight == 0 {
		opts.FramesInFlight = 1
	}
	logger := ctx.Logger.WithPrefix("vulkan")
	vctx, err := newContext(opts.AppName, logger)
	if err != nil {
		logger.Error("failed to create vulkan context", "err", err)
		return nil, err
	}
	d := &Device{
		ctx:          vctx,
		logger:       logger,
		opts:         opts,
		textures:     make(map[rhi.TextureHandle]*image),
		buffers:      make(map[rhi.BufferHandle]*buffer),
		renderPasses: make(map[rhi.RenderPassHandle]*renderPass),
		framebuffers: make(map[rhi.FramebufferHandle]*framebuffer),
		pipelines:    make(map[rhi.PipelineHandle]*pipeline),
	}
	if err := d.createSwapchain(opts.Width, opts.Height); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.createFrameSlots(); err != nil {
		d.Destroy()
		return nil, err
	}
	return d, nil
}

func (d *Device) createFrameSlots() error {
	lists, err := allocateCommandLists(d, int(d.opts.FramesInFlight))
	if err != nil {
		return err
	}
	for _, cl := range lists {
		fence, err := newFence(d.ctx, true)
		if err != nil {
			return err
		}
		d.slots = append(d.slots, frameSlot{commands: cl, fence: fence})
	}
	return nil
}

func (d *Device) allocate() uint32 {
	d.next++
	return d.next
}

func (d *Device) CreateTexture(desc rhi.TextureDescription) (rhi.TextureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createTexture(desc)
}

func (d *Device) createTexture(desc rhi.TextureDescription) (rhi.TextureHandle, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("vulkan: texture %q has zero extent", desc.Label)
	}
	img, err := createImage(d.ctx, desc)
	if err != nil {
		return 0, err
	}
	h := rhi.TextureHandle(d.allocate())
	d.textures[h] = img
	return h, nil
}

func (d *Device) DestroyTexture(h rhi.TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyTexture(h)
}

func (d *Device) destroyTexture(h rhi.TextureHandle) {
	if img, ok := d.textures[h]; ok {
		img.destroy(d.ctx)
		delete(d.textures, h)
	}
}

func (d *Device) CreateBuffer(desc rhi.BufferDescription) (rhi.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := createBuffer(d.ctx, desc)
	if err != nil {
		return 0, err
	}
	h := rhi.BufferHandle(d.allocate())
	d.buffers[h] = buf
	return h, nil
}

func (d *Device) DestroyBuffer(h rhi.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers[h]; ok {
		buf.destroy(d.ctx)
		delete(d.buffers, h)
	}
}

func (d *Device) CreateRenderPass(desc rhi.RenderPassDescription) (rhi.RenderPassHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rp, err := createRenderPass(d.ctx, desc)
	if err != nil {
		return 0, err
	}
	h := rhi.RenderPassHandle(d.allocate())
	d.renderPasses[h] = rp
	return h, nil
}

func (d *Device) DestroyRenderPass(h rhi.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rp, ok := d.renderPasses[h]; ok {
		rp.destroy(d.ctx)
		delete(d.renderPasses, h)
	}
}

func (d *Device) CreateFramebuffer(desc rhi.FramebufferDescription) (rhi.FramebufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rp, ok := d.renderPasses[desc.RenderPass]
	if !ok {
		return 0, fmt.Errorf("vulkan: framebuffer %q uses unknown render pass %d", desc.Label, desc.RenderPass)
	}
	views := make([]vk.ImageView, 0, len(desc.Attachments))
	for _, a := range desc.Attachments {
		img, ok := d.textures[a]
		if !ok {
			return 0, fmt.Errorf("vulkan: framebuffer %q uses unknown texture %d", desc.Label, a)
		}
		views = append(views, img.View)
	}
	fb, err := createFramebuffer(d.ctx, rp, views, desc)
	if err != nil {
		return 0, err
	}
	h := rhi.FramebufferHandle(d.allocate())
	d.framebuffers[h] = fb
	return h, nil
}

func (d *Device) DestroyFramebuffer(h rhi.FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fb, ok := d.framebuffers[h]; ok {
		fb.destroy(d.ctx)
		delete(d.framebuffers, h)
	}
}

func (d *Device) CreatePipeline(desc rhi.PipelineDescription) (rhi.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var rp *renderPass
	if !desc.IsCompute() {
		var ok bool
		if rp, ok = d.renderPasses[desc.RenderPass]; !ok {
			return 0, fmt.Errorf("vulkan: pipeline %q uses unknown render pass %d", desc.Label, desc.RenderPass)
		}
	}
	p, err := createPipeline(d.ctx, rp, desc)
	if err != nil {
		d.logger.Error("pipeline creation failed", "pipeline", desc.Label, "err", err)
		return 0, err
	}
	h := rhi.PipelineHandle(d.allocate())
	d.pipelines[h] = p
	return h, nil
}

func (d *Device) DestroyPipeline(h rhi.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[h]; ok {
		p.destroy(d.ctx)
		delete(d.pipelines, h)
	}
}

func (d *Device) Swapchain() rhi.SwapchainInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.swapchain == nil {
		return rhi.SwapchainInfo{}
	}
	return d.swapchain.info(d.opts.ColorFormat, d.opts.DepthFormat)
}

// Invalidate makes the next BeginFrame ask for a swapchain rebuild.
func (d *Device) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stale = true
}

// BeginFrame waits for the frame slot's previous submission and starts
// recording into its command buffer.
func (d *Device) BeginFrame() (rhi.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stale || d.swapchain == nil {
		return rhi.Frame{}, core.ErrSwapchainBooting
	}
	if d.inUse {
		return rhi.Frame{}, fmt.Errorf("vulkan: frame %d already begun", d.number)
	}
	slot := d.slots[d.slot]
	if err := slot.fence.Wait(d.ctx, ^uint64(0)); err != nil {
		d.logger.Error("frame fence wait failed", "frame", d.number, "err", err)
		return rhi.Frame{}, err
	}
	if err := slot.fence.Reset(d.ctx); err != nil {
		return rhi.Frame{}, err
	}
	if err := slot.commands.begin(); err != nil {
		return rhi.Frame{}, err
	}
	d.inUse = true
	return rhi.Frame{Commands: slot.commands, ImageIndex: d.swapchain.current, Number: d.number}, nil
}

// EndFrame submits the frame's command buffer. The slot's fence signals
// when the GPU is done with it.
func (d *Device) EndFrame(f rhi.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot := d.slots[d.slot]
	if f.Commands != rhi.CommandList(slot.commands) {
		return fmt.Errorf("vulkan: frame %d ended with a foreign command list", f.Number)
	}
	d.inUse = false
	if err := slot.commands.end(); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{slot.commands.Handle},
	}
	err := d.ctx.locks.SafeQueueCall(d.ctx.QueueFamily, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.ctx.Queue, 1, []vk.SubmitInfo{submitInfo}, slot.fence.Handle))
	})
	if err != nil {
		d.logger.Error("queue submit failed", "frame", f.Number, "err", err)
		return err
	}
	slot.commands.State = CommandBufferSubmitted

	d.number++
	d.slot = (d.slot + 1) % len(d.slots)
	d.swapchain.advance()
	return nil
}

func (d *Device) RecreateSwapchain(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ctx.waitIdle(); err != nil {
		return err
	}
	old := d.swapchain
	if err := d.createSwapchain(width, height); err != nil {
		return err
	}
	d.destroySwapchainImages(old)
	d.stale = false
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil
	}
	return d.ctx.waitIdle()
}

// Destroy releases every object the device still holds, then the device
// itself.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return
	}
	if err := d.ctx.waitIdle(); err != nil {
		d.logger.Warn("wait idle before destroy failed", "err", err)
	}
	for _, s := range d.slots {
		s.fence.destroy(d.ctx)
		s.commands.free(d.ctx)
	}
	d.slots = nil
	for h, p := range d.pipelines {
		p.destroy(d.ctx)
		delete(d.pipelines, h)
	}
	for h, fb := range d.framebuffers {
		fb.destroy(d.ctx)
		delete(d.framebuffers, h)
	}
	for h, rp := range d.renderPasses {
		rp.destroy(d.ctx)
		delete(d.renderPasses, h)
	}
	for h, buf := range d.buffers {
		buf.destroy(d.ctx)
		delete(d.buffers, h)
	}
	for h, img := range d.textures {
		img.destroy(d.ctx)
		delete(d.textures, h)
	}
	d.swapchain = nil
	d.ctx.destroy()
	d.ctx = nil
	d.logger.Info("vulkan device destroyed", "frames", d.number)
}
