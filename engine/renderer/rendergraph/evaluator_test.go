package rendergraph

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi/headless"
)

var fullscreen = rhi.PipelineDescription{
	Vertex:   rhi.ShaderStage{EntryPoint: "vs_main"},
	Fragment: &rhi.ShaderStage{EntryPoint: "fs_main"},
}

type fixture struct {
	graph  *Graph
	device *headless.Device
	eval   *Evaluator
	plan   *Plan

	tonemapPipeline ResourceID
	extra           bool
}

// newFixture builds a scene pass rendering into hdr and depth and a
// tonemap pass resolving hdr into the swapchain.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := newTestContext(t)
	f := &fixture{
		graph:  NewGraph(ctx, "fixture"),
		device: headless.New(headless.DefaultOptions()),
	}
	f.graph.AddPass("scene", func(b *Builder) {
		b.Write("hdr", Relative(gputypes.TextureFormatRGBA16Float, 100, rhi.ClearColor(gputypes.ColorBlack)))
		b.Write("depth", Relative(gputypes.TextureFormatDepth32Float, 100, rhi.ClearDepthStencil(1, 0)))
		if f.extra {
			b.Write("extra", Fixed(gputypes.TextureFormatRGBA8Unorm, 1280, 720, rhi.ClearColor(gputypes.ColorWhite)))
		}
	}, nil)
	f.graph.AddPass("tonemap", func(b *Builder) {
		b.Read("hdr")
		b.WriteSwapchainColor()
		f.tonemapPipeline = b.Create(fullscreen)
	}, func(cmd rhi.CommandList, reg *Registry) {
		cmd.BindPipeline(reg.Pipeline(f.tonemapPipeline))
		cmd.Draw(3, 1, 0, 0)
	})
	f.eval = NewEvaluator(ctx, f.graph, f.device)
	f.graph.SetFramebufferExtent(f.device.Swapchain().Extent)
	f.compile(t)
	f.build(t, false)
	return f
}

func (f *fixture) compile(t *testing.T) {
	t.Helper()
	plan, err := f.graph.compile()
	if err != nil {
		t.Fatalf("compile() error = %v", err)
	}
	f.plan = plan
}

func (f *fixture) build(t *testing.T, force bool) {
	t.Helper()
	if err := f.eval.Build(f.plan, f.graph.Extent(), force); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
}

func (f *fixture) id(name string) ResourceID {
	id, _ := f.graph.Registry().Lookup(name)
	return id
}

func TestEvaluatorBuild(t *testing.T) {
	f := newFixture(t)
	reg := f.graph.Registry()
	sc := f.device.Swapchain()

	hdr := f.device.Textures[reg.Texture(f.id("hdr"))]
	if hdr.Width != 1280 || hdr.Height != 720 || hdr.Format != gputypes.TextureFormatRGBA16Float {
		t.Errorf("hdr = %+v", hdr)
	}
	if !hdr.Usage.Contains(gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding) {
		t.Errorf("hdr usage = %v", hdr.Usage)
	}

	scene := reg.RenderTarget(f.graph.Pass("scene").RenderTarget())
	if len(scene.Framebuffers) != 1 {
		t.Fatalf("scene framebuffers = %d, want 1", len(scene.Framebuffers))
	}
	fb := f.device.Framebuffers[scene.Framebuffers[0]]
	want := []rhi.TextureHandle{reg.Texture(f.id("hdr")), reg.Texture(f.id("depth"))}
	if !slices.Equal(fb.Attachments, want) || fb.Width != 1280 || fb.Height != 720 {
		t.Errorf("scene framebuffer = %+v, want attachments %v", fb, want)
	}
	rp := f.device.RenderPasses[scene.RenderPass]
	if len(rp.ColorAttachments) != 1 || rp.DepthAttachment == nil {
		t.Errorf("scene render pass = %+v", rp)
	}

	tonemap := reg.RenderTarget(f.graph.Pass("tonemap").RenderTarget())
	if len(tonemap.Framebuffers) != len(sc.Images) {
		t.Fatalf("tonemap framebuffers = %d, want %d", len(tonemap.Framebuffers), len(sc.Images))
	}
	for i, h := range tonemap.Framebuffers {
		if got := f.device.Framebuffers[h].Attachments[0]; got != sc.Images[i] {
			t.Errorf("framebuffer %d attachment = %d, want image %d", i, got, sc.Images[i])
		}
	}
	color := f.device.RenderPasses[tonemap.RenderPass].ColorAttachments[0]
	if color.FinalLayout != rhi.ImageLayoutPresentSrc || color.LoadOp != gputypes.LoadOpClear {
		t.Errorf("tonemap color attachment = %+v", color)
	}
	if color.Format != sc.ColorFormat {
		t.Errorf("swapchain attachment format = %v, want %v", color.Format, sc.ColorFormat)
	}

	p := f.device.Pipelines[reg.Pipeline(f.tonemapPipeline)]
	if p.RenderPass != tonemap.RenderPass {
		t.Errorf("pipeline render pass = %d, want %d", p.RenderPass, tonemap.RenderPass)
	}
	if f.device.Live() != 9 {
		t.Errorf("Live() = %d, want 9", f.device.Live())
	}
}

func TestEvaluatorBuildIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ready := 0
	f.graph.Registry().OnReady(f.id("hdr"), func(ResourceID, RealHandle) { ready++ })
	live := f.device.Live()

	f.compile(t)
	f.build(t, false)
	if f.device.Live() != live || f.eval.Pending() != 0 {
		t.Errorf("rebuild changed objects: live %d -> %d, pending %d", live, f.device.Live(), f.eval.Pending())
	}
	if ready != 1 {
		t.Errorf("OnReady ran %d times, want 1", ready)
	}
}

func TestEvaluatorResize(t *testing.T) {
	f := newFixture(t)
	reg := f.graph.Registry()
	ready := 0
	reg.OnReady(f.id("hdr"), func(ResourceID, RealHandle) { ready++ })
	oldHDR := reg.Texture(f.id("hdr"))

	if err := f.device.RecreateSwapchain(640, 480); err != nil {
		t.Fatal(err)
	}
	f.graph.SetFramebufferExtent(rhi.Extent2D{Width: 640, Height: 480})
	f.build(t, true)

	newHDR := reg.Texture(f.id("hdr"))
	if newHDR == oldHDR {
		t.Fatal("hdr not recreated")
	}
	if d := f.device.Textures[newHDR]; d.Width != 640 || d.Height != 480 {
		t.Errorf("hdr = %dx%d, want 640x480", d.Width, d.Height)
	}
	if ready != 2 {
		t.Errorf("OnReady ran %d times, want 2", ready)
	}
	if _, ok := f.device.Textures[oldHDR]; !ok {
		t.Error("old hdr destroyed while frames may still use it")
	}
	if got := f.eval.Pending(); got != 5 {
		t.Errorf("Pending() = %d, want 5", got)
	}

	f.eval.EndFrame()
	if f.eval.Pending() != 5 {
		t.Errorf("objects destroyed after one frame, Pending() = %d", f.eval.Pending())
	}
	f.eval.EndFrame()
	if f.eval.Pending() != 0 {
		t.Errorf("Pending() after frames in flight = %d, want 0", f.eval.Pending())
	}
	if _, ok := f.device.Textures[oldHDR]; ok {
		t.Error("old hdr still alive")
	}
	if f.device.Live() != 9 {
		t.Errorf("Live() = %d, want 9", f.device.Live())
	}
}

func TestEvaluatorForcedRebuildSharedOutput(t *testing.T) {
	ctx := newTestContext(t)
	g := NewGraph(ctx, "shared")
	dev := headless.New(headless.DefaultOptions())
	for _, name := range []string{"a", "b", "c"} {
		g.AddPass(name, func(b *Builder) {
			b.Write("accum", Relative(gputypes.TextureFormatRGBA16Float, 50, rhi.ClearColor(gputypes.ColorBlack)))
		}, nil)
	}
	g.SetFramebufferExtent(dev.Swapchain().Extent)
	plan, err := g.compile()
	if err != nil {
		t.Fatal(err)
	}
	ev := NewEvaluator(ctx, g, dev)
	if err := ev.Build(plan, g.Extent(), false); err != nil {
		t.Fatal(err)
	}
	accum, _ := g.Registry().Lookup("accum")
	ready := 0
	g.Registry().OnReady(accum, func(ResourceID, RealHandle) { ready++ })
	ready = 0
	before := g.Registry().Texture(accum)

	if err := ev.Build(plan, g.Extent(), true); err != nil {
		t.Fatal(err)
	}
	accums := 0
	for _, desc := range dev.Textures {
		if strings.HasPrefix(desc.Label, "accum-") {
			accums++
		}
	}
	if accums != 2 {
		t.Errorf("accum textures = %d, want the new one and the retired one", accums)
	}
	// one texture and the three pass targets
	if got := ev.Pending(); got != 4 {
		t.Errorf("Pending() = %d, want 4", got)
	}
	if ready != 1 {
		t.Errorf("OnReady ran %d times, want 1", ready)
	}
	after := g.Registry().Texture(accum)
	if after == before {
		t.Fatal("accum not recreated")
	}
	for _, name := range []string{"a", "b", "c"} {
		target := g.Registry().RenderTarget(g.Pass(name).RenderTarget())
		if got := dev.Framebuffers[target.Framebuffers[0]].Attachments[0]; got != after {
			t.Errorf("pass %s framebuffer attachment = %d, want %d", name, got, after)
		}
	}
}

func TestEvaluatorImportedAttachment(t *testing.T) {
	ctx := newTestContext(t)
	dev := headless.New(headless.DefaultOptions())
	shadow, err := dev.CreateTexture(rhi.TextureDescription{
		Label:  "shadow",
		Format: gputypes.TextureFormatDepth32Float,
		Width:  512,
		Height: 512,
		Layers: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	newGraph := func() *Graph {
		g := NewGraph(ctx, "imported")
		g.AddPass("shadow", func(b *Builder) {
			b.Write("shadow", AttachmentSpec{})
		}, nil)
		g.SetFramebufferExtent(dev.Swapchain().Extent)
		return g
	}

	// without a format the import cannot be bound
	g := newGraph()
	g.Registry().ImportTexture("shadow", shadow, rhi.ImageLayoutUndefined, rhi.ClearDepthStencil(1, 0))
	plan, err := g.compile()
	if err != nil {
		t.Fatal(err)
	}
	if err := NewEvaluator(ctx, g, dev).Build(plan, g.Extent(), false); !errors.Is(err, ErrInvalidAttachment) {
		t.Errorf("Build() error = %v, want ErrInvalidAttachment", err)
	}

	g = newGraph()
	g.Registry().ImportAttachment("shadow", shadow, rhi.ImageLayoutUndefined,
		Fixed(gputypes.TextureFormatDepth32Float, 512, 512, rhi.ClearDepthStencil(1, 0)))
	plan, err = g.compile()
	if err != nil {
		t.Fatal(err)
	}
	ev := NewEvaluator(ctx, g, dev)
	if err := ev.Build(plan, g.Extent(), false); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	target := g.Registry().RenderTarget(g.Pass("shadow").RenderTarget())
	rp := dev.RenderPasses[target.RenderPass]
	if len(rp.ColorAttachments) != 0 || rp.DepthAttachment == nil || rp.DepthAttachment.Format != gputypes.TextureFormatDepth32Float {
		t.Errorf("render pass = %+v, want one depth32float attachment", rp)
	}
	if target.Extent != (rhi.Extent2D{Width: 512, Height: 512}) {
		t.Errorf("target extent = %v, want 512x512", target.Extent)
	}
	ev.Destroy()
	if _, ok := dev.Textures[shadow]; !ok {
		t.Error("Destroy() released the import")
	}
}

func TestEvaluatorCollectsUnusedResources(t *testing.T) {
	f := newFixture(t)
	f.extra = true
	f.graph.MarkDirty("scene")
	f.compile(t)
	f.build(t, false)
	extra := f.id("extra")
	if !f.graph.Registry().IsRealized(extra) {
		t.Fatal("extra not realised")
	}

	f.extra = false
	f.graph.MarkDirty("scene")
	f.compile(t)
	f.build(t, false)
	if f.graph.Registry().IsRealized(extra) {
		t.Error("extra still realised after the pass stopped writing it")
	}
	if f.eval.Pending() == 0 {
		t.Error("extra was not retired")
	}
}

func TestEvaluatorExecute(t *testing.T) {
	f := newFixture(t)
	reg := f.graph.Registry()
	f.device.EndFrame(mustBeginFrame(t, f.device))

	frame := mustBeginFrame(t, f.device)
	if frame.ImageIndex != 1 {
		t.Fatalf("ImageIndex = %d, want 1", frame.ImageIndex)
	}
	if err := f.eval.Execute(frame.Commands, f.plan, frame.ImageIndex); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	cmd := frame.Commands.(*headless.CommandList)

	want := []headless.CommandType{
		headless.CmdBeginRenderPass, headless.CmdSetViewport, headless.CmdSetScissor, headless.CmdEndRenderPass,
		headless.CmdPipelineBarrier,
		headless.CmdPipelineBarrier,
		headless.CmdBeginRenderPass, headless.CmdSetViewport, headless.CmdSetScissor,
		headless.CmdBindPipeline, headless.CmdDraw,
		headless.CmdEndRenderPass,
		headless.CmdPipelineBarrier,
	}
	if got := cmd.Types(); !slices.Equal(got, want) {
		t.Fatalf("commands = %v\nwant %v", got, want)
	}

	begin := cmd.Commands[0]
	if len(begin.Clears) != 2 || begin.Clears[0].IsDepthStencil() || !begin.Clears[1].IsDepthStencil() {
		t.Errorf("scene clears = %v, want color then depth", begin.Clears)
	}
	if begin.Area.Extent != (rhi.Extent2D{Width: 1280, Height: 720}) {
		t.Errorf("scene area = %+v", begin.Area)
	}

	transition := cmd.Commands[5]
	if len(transition.ImageBarriers) != 1 || transition.ImageBarriers[0].Texture != reg.Texture(f.id("hdr")) {
		t.Errorf("tonemap pre-barrier = %+v", transition)
	}

	tonemap := reg.RenderTarget(f.graph.Pass("tonemap").RenderTarget())
	if got := cmd.Commands[6].Framebuffer; got != tonemap.Framebuffer(1) {
		t.Errorf("tonemap framebuffer = %d, want %d", got, tonemap.Framebuffer(1))
	}
	if got := cmd.Commands[9].Pipeline; got != reg.Pipeline(f.tonemapPipeline) {
		t.Errorf("bound pipeline = %d", got)
	}
	if reg.Texture(SwapchainColor) != f.device.Swapchain().Images[1] {
		t.Error("swapchain id does not point at the acquired image")
	}
	if err := f.device.EndFrame(frame); err != nil {
		t.Errorf("EndFrame() error = %v", err)
	}
}

func mustBeginFrame(t *testing.T, d *headless.Device) rhi.Frame {
	t.Helper()
	frame, err := d.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	return frame
}

func TestEvaluatorComputePass(t *testing.T) {
	ctx := newTestContext(t)
	g := NewGraph(ctx, "compute")
	dev := headless.New(headless.DefaultOptions())
	var cull ResourceID
	g.AddComputePass("cull", func(b *Builder) {
		b.WriteBuffer("draws", BufferSpec{Size: 4096, Usage: gputypes.BufferUsageStorage})
		cull = b.Create(rhi.PipelineDescription{Compute: &rhi.ShaderStage{EntryPoint: "cs_main"}})
	}, func(cmd rhi.CommandList, reg *Registry) {
		cmd.BindPipeline(reg.Pipeline(cull))
		cmd.Dispatch(64, 1, 1)
	})
	g.AddPass("draw", func(b *Builder) {
		b.ReadBuffer("draws", gputypes.BufferUsageIndirect)
		b.WriteSwapchainColor()
	}, nil)
	g.SetFramebufferExtent(dev.Swapchain().Extent)

	plan, err := g.compile()
	if err != nil {
		t.Fatal(err)
	}
	ev := NewEvaluator(ctx, g, dev)
	if err := ev.Build(plan, g.Extent(), false); err != nil {
		t.Fatal(err)
	}
	draws, _ := g.Registry().Lookup("draws")
	desc := dev.Buffers[g.Registry().Buffer(draws)]
	if desc.Size != 4096 || !desc.Usage.Contains(gputypes.BufferUsageIndirect|gputypes.BufferUsageStorage) {
		t.Errorf("draws buffer = %+v", desc)
	}
	if dev.Pipelines[g.Registry().Pipeline(cull)].RenderPass != 0 {
		t.Error("compute pipeline bound to a render pass")
	}

	frame := mustBeginFrame(t, dev)
	if err := ev.Execute(frame.Commands, plan, frame.ImageIndex); err != nil {
		t.Fatal(err)
	}
	got := frame.Commands.(*headless.CommandList).Types()
	want := []headless.CommandType{
		headless.CmdBindPipeline, headless.CmdDispatch, headless.CmdPipelineBarrier,
		headless.CmdPipelineBarrier,
		headless.CmdBeginRenderPass, headless.CmdSetViewport, headless.CmdSetScissor, headless.CmdEndRenderPass,
		headless.CmdPipelineBarrier,
	}
	if !slices.Equal(got, want) {
		t.Errorf("commands = %v\nwant %v", got, want)
	}
}

func TestEvaluatorBuildErrors(t *testing.T) {
	t.Run("device failure", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("out of memory")
		f.device.FailCreate = func(kind, _ string) error {
			if kind == "texture" {
				return boom
			}
			return nil
		}
		f.graph.SetFramebufferExtent(rhi.Extent2D{Width: 800, Height: 600})
		if err := f.eval.Build(f.plan, f.graph.Extent(), true); !errors.Is(err, boom) {
			t.Errorf("Build() error = %v, want %v", err, boom)
		}
	})

	t.Run("mixed sizes", func(t *testing.T) {
		ctx := newTestContext(t)
		g := NewGraph(ctx, "mixed")
		g.AddPass("a", func(b *Builder) {
			b.Write("small", Fixed(gputypes.TextureFormatRGBA8Unorm, 64, 64, rhi.ClearColor(gputypes.ColorBlack)))
			b.Write("large", Fixed(gputypes.TextureFormatRGBA8Unorm, 128, 128, rhi.ClearColor(gputypes.ColorBlack)))
		}, nil)
		plan, err := g.compile()
		if err != nil {
			t.Fatal(err)
		}
		ev := NewEvaluator(ctx, g, headless.New(headless.DefaultOptions()))
		if err := ev.Build(plan, rhi.Extent2D{Width: 1280, Height: 720}, false); !errors.Is(err, ErrInvalidAttachment) {
			t.Errorf("Build() error = %v, want ErrInvalidAttachment", err)
		}
	})

	t.Run("two depth attachments", func(t *testing.T) {
		ctx := newTestContext(t)
		g := NewGraph(ctx, "depths")
		g.AddPass("a", func(b *Builder) {
			b.Write("d1", depthSpec)
			b.Write("d2", depthSpec)
		}, nil)
		plan, err := g.compile()
		if err != nil {
			t.Fatal(err)
		}
		ev := NewEvaluator(ctx, g, headless.New(headless.DefaultOptions()))
		if err := ev.Build(plan, rhi.Extent2D{Width: 1280, Height: 720}, false); !errors.Is(err, ErrInvalidAttachment) {
			t.Errorf("Build() error = %v, want ErrInvalidAttachment", err)
		}
	})
}

func TestEvaluatorDestroy(t *testing.T) {
	f := newFixture(t)
	imported, err := f.device.CreateTexture(rhi.TextureDescription{
		Label:  "environment",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  16,
		Height: 16,
		Layers: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.graph.Registry().ImportTexture("environment", imported, rhi.ImageLayoutShaderReadOnly, rhi.ClearColor(gputypes.ColorBlack))

	f.eval.Destroy()
	if f.device.Live() != 1 {
		t.Errorf("Live() = %d, want only the import", f.device.Live())
	}
	if _, ok := f.device.Textures[imported]; !ok {
		t.Error("imported texture destroyed")
	}
	if f.graph.Registry().IsRealized(f.id("hdr")) {
		t.Error("hdr still realised after Destroy")
	}
}
