// Package headless implements rhi.Device in memory. It allocates handles,
// remembers every description and records command lists, which makes it
// the device of choice for tests and for runs without a GPU.
package headless

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

type Options struct {
	Width, Height uint32
	// ImageCount is the number of swapchain images.
	ImageCount  uint32
	ColorFormat gputypes.TextureFormat
	DepthFormat gputypes.TextureFormat
}

func DefaultOptions() Options {
	return Options{
		Width:       1280,
		Height:      720,
		ImageCount:  3,
		ColorFormat: gputypes.TextureFormatBGRA8Unorm,
		DepthFormat: gputypes.TextureFormatDepth32Float,
	}
}

// Device is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	opts      Options
	next      uint32
	swapchain rhi.SwapchainInfo
	stale     bool

	Textures     map[rhi.TextureHandle]rhi.TextureDescription
	Buffers      map[rhi.BufferHandle]rhi.BufferDescription
	RenderPasses map[rhi.RenderPassHandle]rhi.RenderPassDescription
	Framebuffers map[rhi.FramebufferHandle]rhi.FramebufferDescription
	Pipelines    map[rhi.PipelineHandle]rhi.PipelineDescription

	frame    uint64
	image    uint32
	inFrame  bool
	recorded []*CommandList

	// FailCreate, when set, is consulted before every creation. A non-nil
	// error aborts it.
	FailCreate func(kind, label string) error
}

var _ rhi.Device = (*Device)(nil)

func New(opts Options) *Device {
	if opts.ImageCount == 0 {
		opts.ImageCount = 1
	}
	d := &Device{
		opts:         opts,
		Textures:     make(map[rhi.TextureHandle]rhi.TextureDescription),
		Buffers:      make(map[rhi.BufferHandle]rhi.BufferDescription),
		RenderPasses: make(map[rhi.RenderPassHandle]rhi.RenderPassDescription),
		Framebuffers: make(map[rhi.FramebufferHandle]rhi.FramebufferDescription),
		Pipelines:    make(map[rhi.PipelineHandle]rhi.PipelineDescription),
	}
	d.createSwapchain(opts.Width, opts.Height)
	return d
}

func (d *Device) allocate() uint32 {
	d.next++
	return d.next
}

func (d *Device) check(kind, label string) error {
	if d.FailCreate == nil {
		return nil
	}
	if err := d.FailCreate(kind, label); err != nil {
		return fmt.Errorf("headless: create %s %q: %w", kind, label, err)
	}
	return nil
}

func (d *Device) createSwapchain(width, height uint32) {
	info := rhi.SwapchainInfo{
		ColorFormat:   d.opts.ColorFormat,
		DepthFormat:   d.opts.DepthFormat,
		Extent:        rhi.Extent2D{Width: width, Height: height},
		PresentLayout: rhi.ImageLayoutPresentSrc,
	}
	for i := uint32(0); i < d.opts.ImageCount; i++ {
		h := rhi.TextureHandle(d.allocate())
		d.Textures[h] = rhi.TextureDescription{
			Label:  fmt.Sprintf("swapchain.%d", i),
			Format: d.opts.ColorFormat,
			Width:  width,
			Height: height,
			Layers: 1,
			Usage:  gputypes.TextureUsageRenderAttachment,
		}
		info.Images = append(info.Images, h)
	}
	info.Depth = rhi.TextureHandle(d.allocate())
	d.Textures[info.Depth] = rhi.TextureDescription{
		Label:  "swapchain.depth",
		Format: d.opts.DepthFormat,
		Width:  width,
		Height: height,
		Layers: 1,
		Usage:  gputypes.TextureUsageRenderAttachment,
	}
	d.swapchain = info
}

func (d *Device) destroySwapchain() {
	for _, h := range d.swapchain.Images {
		delete(d.Textures, h)
	}
	delete(d.Textures, d.swapchain.Depth)
}

func (d *Device) CreateTexture(desc rhi.TextureDescription) (rhi.TextureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("texture", desc.Label); err != nil {
		return 0, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("headless: texture %q has zero extent", desc.Label)
	}
	h := rhi.TextureHandle(d.allocate())
	d.Textures[h] = desc
	return h, nil
}

func (d *Device) DestroyTexture(h rhi.TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Textures, h)
}

func (d *Device) CreateBuffer(desc rhi.BufferDescription) (rhi.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("buffer", desc.Label); err != nil {
		return 0, err
	}
	if desc.Size == 0 {
		return 0, fmt.Errorf("headless: buffer %q has zero size", desc.Label)
	}
	h := rhi.BufferHandle(d.allocate())
	d.Buffers[h] = desc
	return h, nil
}

func (d *Device) DestroyBuffer(h rhi.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Buffers, h)
}

func (d *Device) CreateRenderPass(desc rhi.RenderPassDescription) (rhi.RenderPassHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("render pass", desc.Label); err != nil {
		return 0, err
	}
	h := rhi.RenderPassHandle(d.allocate())
	d.RenderPasses[h] = desc
	return h, nil
}

func (d *Device) DestroyRenderPass(h rhi.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.RenderPasses, h)
}

func (d *Device) CreateFramebuffer(desc rhi.FramebufferDescription) (rhi.FramebufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("framebuffer", desc.Label); err != nil {
		return 0, err
	}
	if _, ok := d.RenderPasses[desc.RenderPass]; !ok {
		return 0, fmt.Errorf("headless: framebuffer %q uses unknown render pass %d", desc.Label, desc.RenderPass)
	}
	for _, a := range desc.Attachments {
		if _, ok := d.Textures[a]; !ok {
			return 0, fmt.Errorf("headless: framebuffer %q uses unknown texture %d", desc.Label, a)
		}
	}
	h := rhi.FramebufferHandle(d.allocate())
	d.Framebuffers[h] = desc
	return h, nil
}

func (d *Device) DestroyFramebuffer(h rhi.FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Framebuffers, h)
}

func (d *Device) CreatePipeline(desc rhi.PipelineDescription) (rhi.PipelineHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("pipeline", desc.Label); err != nil {
		return 0, err
	}
	if !desc.IsCompute() {
		if _, ok := d.RenderPasses[desc.RenderPass]; !ok {
			return 0, fmt.Errorf("headless: pipeline %q uses unknown render pass %d", desc.Label, desc.RenderPass)
		}
	}
	h := rhi.PipelineHandle(d.allocate())
	d.Pipelines[h] = desc
	return h, nil
}

func (d *Device) DestroyPipeline(h rhi.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Pipelines, h)
}

func (d *Device) Swapchain() rhi.SwapchainInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swapchain
}

// Invalidate makes the next BeginFrame report the swapchain out of date,
// like a window resize would.
func (d *Device) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stale = true
}

func (d *Device) BeginFrame() (rhi.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stale {
		return rhi.Frame{}, core.ErrSwapchainBooting
	}
	if d.inFrame {
		return rhi.Frame{}, fmt.Errorf("headless: frame %d already begun", d.frame)
	}
	d.inFrame = true
	cmd := &CommandList{}
	d.recorded = append(d.recorded, cmd)
	return rhi.Frame{Commands: cmd, ImageIndex: d.image, Number: d.frame}, nil
}

func (d *Device) EndFrame(f rhi.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd, ok := f.Commands.(*CommandList)
	if !ok {
		return fmt.Errorf("headless: foreign command list %T", f.Commands)
	}
	if cmd.inRenderPass {
		return fmt.Errorf("headless: frame %d ended inside a render pass", f.Number)
	}
	d.inFrame = false
	d.frame++
	d.image = (d.image + 1) % uint32(len(d.swapchain.Images))
	return nil
}

func (d *Device) RecreateSwapchain(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if width == 0 || height == 0 {
		return fmt.Errorf("headless: swapchain extent %dx%d", width, height)
	}
	d.destroySwapchain()
	d.createSwapchain(width, height)
	d.image = 0
	d.stale = false
	return nil
}

func (d *Device) WaitIdle() error {
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroySwapchain()
}

// Frames returns the command lists recorded so far, oldest first.
func (d *Device) Frames() []*CommandList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*CommandList(nil), d.recorded...)
}

// LastFrame returns the most recently begun command list.
func (d *Device) LastFrame() *CommandList {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.recorded) == 0 {
		return nil
	}
	return d.recorded[len(d.recorded)-1]
}

// Live reports how many objects the device currently holds, swapchain
// images excluded.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Textures) - len(d.swapchain.Images) - 1 +
		len(d.Buffers) + len(d.RenderPasses) + len(d.Framebuffers) + len(d.Pipelines)
}
