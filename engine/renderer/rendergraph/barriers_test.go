package rendergraph

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

func TestTextureSyncTable(t *testing.T) {
	tests := []struct {
		name string
		got  syncDependency
		want syncDependency
	}{
		{
			name: "graphics read",
			got:  textureReadSync(PassGraphics),
			want: syncDependency{rhi.PipelineStageFragmentShader, rhi.AccessShaderRead, rhi.ImageLayoutShaderReadOnly},
		},
		{
			name: "compute read",
			got:  textureReadSync(PassCompute),
			want: syncDependency{rhi.PipelineStageComputeShader, rhi.AccessShaderRead, rhi.ImageLayoutShaderReadOnly},
		},
		{
			name: "color write",
			got:  textureWriteSync(PassGraphics, AttachmentColor),
			want: syncDependency{rhi.PipelineStageColorAttachmentOutput, rhi.AccessColorAttachmentWrite, rhi.ImageLayoutColorAttachment},
		},
		{
			name: "depth write",
			got:  textureWriteSync(PassGraphics, AttachmentDepth),
			want: syncDependency{
				rhi.PipelineStageEarlyFragmentTests | rhi.PipelineStageLateFragmentTests,
				rhi.AccessDepthStencilAttachmentWrite,
				rhi.ImageLayoutDepthStencilAttachment,
			},
		},
		{
			name: "compute write",
			got:  textureWriteSync(PassCompute, AttachmentColor),
			want: syncDependency{rhi.PipelineStageComputeShader, rhi.AccessShaderWrite, rhi.ImageLayoutGeneral},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("sync = %+v, want %+v", tt.got, tt.want)
			}
		})
	}
}

func TestBufferReadSync(t *testing.T) {
	tests := []struct {
		name   string
		typ    PassType
		usage  gputypes.BufferUsage
		stage  rhi.PipelineStage
		access rhi.Access
	}{
		{"vertex", PassGraphics, gputypes.BufferUsageVertex, rhi.PipelineStageVertexInput, rhi.AccessVertexAttributeRead},
		{"index", PassGraphics, gputypes.BufferUsageIndex, rhi.PipelineStageVertexInput, rhi.AccessIndexRead},
		{"indirect", PassGraphics, gputypes.BufferUsageIndirect, rhi.PipelineStageDrawIndirect, rhi.AccessIndirectCommandRead},
		{"uniform", PassGraphics, gputypes.BufferUsageUniform, rhi.PipelineStageFragmentShader, rhi.AccessShaderRead},
		{
			"vertex and index", PassGraphics, gputypes.BufferUsageVertex | gputypes.BufferUsageIndex,
			rhi.PipelineStageVertexInput, rhi.AccessVertexAttributeRead | rhi.AccessIndexRead,
		},
		{
			"indirect and storage", PassGraphics, gputypes.BufferUsageIndirect | gputypes.BufferUsageStorage,
			rhi.PipelineStageDrawIndirect | rhi.PipelineStageFragmentShader, rhi.AccessIndirectCommandRead | rhi.AccessShaderRead,
		},
		{"compute", PassCompute, gputypes.BufferUsageIndirect, rhi.PipelineStageComputeShader, rhi.AccessShaderRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bufferReadSync(tt.typ, tt.usage)
			if got.Stage != tt.stage || got.Access != tt.access {
				t.Errorf("bufferReadSync() = %v/%v, want %v/%v", got.Stage, got.Access, tt.stage, tt.access)
			}
		})
	}
}

func TestReadAccess(t *testing.T) {
	if got := readAccess(rhi.AccessColorAttachmentWrite); !got.Contains(rhi.AccessColorAttachmentRead) {
		t.Errorf("readAccess(color) = %v", got)
	}
	if got := readAccess(rhi.AccessDepthStencilAttachmentWrite); !got.Contains(rhi.AccessDepthStencilAttachmentRead) {
		t.Errorf("readAccess(depth) = %v", got)
	}
	if got := readAccess(rhi.AccessShaderWrite); got != rhi.AccessShaderRead {
		t.Errorf("readAccess(shader) = %v", got)
	}
}

func compilePlan(t *testing.T, g *Graph) *Plan {
	t.Helper()
	plan, err := g.compile()
	if err != nil {
		t.Fatalf("compile() error = %v", err)
	}
	return plan
}

func TestInputTransitionsAroundReader(t *testing.T) {
	g := newGraph(t,
		passDecl{name: "A", writes: []string{"c"}},
		passDecl{name: "B", reads: []string{"c"}, writes: []string{"out"}},
		passDecl{name: "C", reads: []string{"c"}, writes: []string{"out2"}},
	)
	plan := compilePlan(t, g)
	c, _ := g.Registry().Lookup("c")

	a := plan.Pass("A")
	if a.PreBarrier.Enabled {
		t.Error("first writer should not need a pre-barrier")
	}
	if len(a.PostBarrier.MemoryBarriers) != 1 {
		t.Fatalf("A post memory barriers = %v", a.PostBarrier.MemoryBarriers)
	}
	if mb := a.PostBarrier.MemoryBarriers[0]; mb.SrcAccess != rhi.AccessColorAttachmentWrite {
		t.Errorf("A post barrier src access = %v", mb.SrcAccess)
	}

	b := plan.Pass("B")
	want := ImageBarrier{
		ID:        c,
		SrcLayout: rhi.ImageLayoutColorAttachment,
		DstLayout: rhi.ImageLayoutShaderReadOnly,
		SrcAccess: rhi.AccessColorAttachmentWrite,
		DstAccess: rhi.AccessShaderRead,
	}
	if !b.PreBarrier.Enabled || len(b.PreBarrier.ImageBarriers) != 1 || b.PreBarrier.ImageBarriers[0] != want {
		t.Fatalf("B pre-barrier = %+v, want %+v", b.PreBarrier, want)
	}
	if b.PreBarrier.SrcStage != rhi.PipelineStageColorAttachmentOutput || b.PreBarrier.DstStage != rhi.PipelineStageFragmentShader {
		t.Errorf("B pre-barrier stages = %v -> %v", b.PreBarrier.SrcStage, b.PreBarrier.DstStage)
	}

	// the post-barrier restores the layout and publishes B's own output
	post := b.PostBarrier
	if len(post.ImageBarriers) != 1 || len(post.MemoryBarriers) != 1 {
		t.Fatalf("B post-barrier = %+v", post)
	}
	back := post.ImageBarriers[0]
	if back.SrcLayout != rhi.ImageLayoutShaderReadOnly || back.DstLayout != rhi.ImageLayoutColorAttachment {
		t.Errorf("B post transition = %v -> %v", back.SrcLayout, back.DstLayout)
	}
	if !post.SrcStage.Contains(rhi.PipelineStageFragmentShader | rhi.PipelineStageColorAttachmentOutput) {
		t.Errorf("B post src stage = %v", post.SrcStage)
	}

	if in := plan.Pass("C").Inputs; len(in) != 1 || in[0].SrcLayout != rhi.ImageLayoutColorAttachment {
		t.Errorf("C inputs = %+v, want c in ColorAttachment", in)
	}
}

func TestOutputLayouts(t *testing.T) {
	g := newGraph(t,
		passDecl{name: "A", writes: []string{"c"}},
		passDecl{name: "B", writes: []string{"c"}},
	)
	plan := compilePlan(t, g)
	first := plan.Passes[0].Outputs[0]
	second := plan.Passes[1].Outputs[0]
	if first.SrcLayout != rhi.ImageLayoutUndefined || first.DstLayout != rhi.ImageLayoutColorAttachment {
		t.Errorf("first write layouts = %v -> %v", first.SrcLayout, first.DstLayout)
	}
	if second.SrcLayout != rhi.ImageLayoutColorAttachment {
		t.Errorf("second write src layout = %v, want ColorAttachment", second.SrcLayout)
	}
}

func TestDepthOutput(t *testing.T) {
	g := NewGraph(newTestContext(t), "depth")
	g.AddPass("prepass", func(b *Builder) { b.Write("depth", depthSpec) }, nil)
	g.AddPass("lighting", func(b *Builder) {
		b.Read("depth")
		b.WriteSwapchainColor()
	}, nil)
	plan := compilePlan(t, g)

	out := plan.Pass("prepass").Outputs[0]
	if out.Type != AttachmentDepth || out.DstLayout != rhi.ImageLayoutDepthStencilAttachment {
		t.Errorf("depth output = %+v", out)
	}
	pre := plan.Pass("lighting").PreBarrier
	if !pre.SrcStage.Contains(rhi.PipelineStageLateFragmentTests) {
		t.Errorf("lighting pre-barrier src stage = %v", pre.SrcStage)
	}
	if ib := pre.ImageBarriers[0]; ib.SrcLayout != rhi.ImageLayoutDepthStencilAttachment {
		t.Errorf("lighting transition from %v", ib.SrcLayout)
	}
}

func TestSwapchainFinalLayout(t *testing.T) {
	build := func(layout rhi.ImageLayout) *Plan {
		g := NewGraph(newTestContext(t), "present")
		if layout != rhi.ImageLayoutUndefined {
			g.SetPresentLayout(layout)
		}
		g.AddPass("scene", func(b *Builder) { b.WriteSwapchainColor() }, nil)
		g.AddPass("ui", func(b *Builder) { b.WriteSwapchainColor() }, nil)
		return compilePlan(t, g)
	}

	plan := build(rhi.ImageLayoutUndefined)
	scene, _ := plan.Pass("scene").Output(SwapchainColor)
	ui, _ := plan.Pass("ui").Output(SwapchainColor)
	if scene.FinalLayout != rhi.ImageLayoutColorAttachment {
		t.Errorf("scene final layout = %v, want ColorAttachment", scene.FinalLayout)
	}
	if scene.LoadOp != gputypes.LoadOpClear || ui.LoadOp != gputypes.LoadOpLoad {
		t.Errorf("load ops = %v, %v", scene.LoadOp, ui.LoadOp)
	}
	if ui.FinalLayout != rhi.ImageLayoutPresentSrc {
		t.Errorf("ui final layout = %v, want PresentSrc", ui.FinalLayout)
	}
	if ui.SrcLayout != rhi.ImageLayoutColorAttachment {
		t.Errorf("ui src layout = %v, want ColorAttachment", ui.SrcLayout)
	}

	plan = build(rhi.ImageLayoutTransferSrc)
	ui, _ = plan.Pass("ui").Output(SwapchainColor)
	if ui.FinalLayout != rhi.ImageLayoutTransferSrc {
		t.Errorf("offscreen final layout = %v, want TransferSrc", ui.FinalLayout)
	}
}

func TestComputeOutputTransition(t *testing.T) {
	g := NewGraph(newTestContext(t), "compute")
	g.AddComputePass("bloom", func(b *Builder) {
		b.Write("bloom", Relative(gputypes.TextureFormatRGBA16Float, 50, rhi.ClearColor(gputypes.ColorBlack)))
	}, nil)
	g.AddPass("tonemap", func(b *Builder) {
		b.Read("bloom")
		b.WriteSwapchainColor()
	}, nil)
	plan := compilePlan(t, g)
	id, _ := g.Registry().Lookup("bloom")

	bloom := plan.Pass("bloom")
	if len(bloom.PreBarrier.ImageBarriers) != 1 {
		t.Fatalf("bloom pre-barrier = %+v", bloom.PreBarrier)
	}
	ib := bloom.PreBarrier.ImageBarriers[0]
	if ib.ID != id || ib.SrcLayout != rhi.ImageLayoutUndefined || ib.DstLayout != rhi.ImageLayoutGeneral {
		t.Errorf("bloom transition = %+v", ib)
	}
	if bloom.PreBarrier.DstStage != rhi.PipelineStageComputeShader {
		t.Errorf("bloom pre-barrier dst stage = %v", bloom.PreBarrier.DstStage)
	}

	pre := plan.Pass("tonemap").PreBarrier
	if pre.SrcStage != rhi.PipelineStageComputeShader || pre.ImageBarriers[0].SrcLayout != rhi.ImageLayoutGeneral {
		t.Errorf("tonemap pre-barrier = %+v", pre)
	}
}

func TestImportedTextures(t *testing.T) {
	g := NewGraph(newTestContext(t), "imports")
	reg := g.Registry()
	reg.ImportTexture("history", 40, rhi.ImageLayoutShaderReadOnly, rhi.ClearColor(gputypes.ColorBlack))
	reg.ImportTexture("lut", 41, rhi.ImageLayoutGeneral, rhi.ClearColor(gputypes.ColorBlack))
	g.AddPass("taa", func(b *Builder) {
		b.Read("history")
		b.WriteSwapchainColor()
	}, nil)
	g.AddPass("grade", func(b *Builder) {
		b.Read("lut")
		b.Write("graded", colorSpec)
	}, nil)
	plan := compilePlan(t, g)

	if plan.Pass("taa").PreBarrier.Enabled {
		t.Error("import already in ShaderReadOnly needs no barrier")
	}
	pre := plan.Pass("grade").PreBarrier
	if len(pre.ImageBarriers) != 1 {
		t.Fatalf("grade pre-barrier = %+v", pre)
	}
	if pre.ImageBarriers[0].SrcLayout != rhi.ImageLayoutGeneral || pre.SrcStage != rhi.PipelineStageTopOfPipe {
		t.Errorf("grade transition = %+v, src stage %v", pre.ImageBarriers[0], pre.SrcStage)
	}
}

func TestImportedDepthOutput(t *testing.T) {
	g := NewGraph(newTestContext(t), "imports")
	g.Registry().ImportTexture("shadow", 50, rhi.ImageLayoutShaderReadOnly, rhi.ClearDepthStencil(1, 0))
	g.AddPass("shadow", func(b *Builder) {
		b.Write("shadow", AttachmentSpec{})
	}, nil)
	plan := compilePlan(t, g)

	out := plan.Pass("shadow").Outputs[0]
	if out.Type != AttachmentDepth {
		t.Errorf("Type = %v, want depth", out.Type)
	}
	if out.DstLayout != rhi.ImageLayoutDepthStencilAttachment || out.SrcLayout != rhi.ImageLayoutShaderReadOnly {
		t.Errorf("layouts = %v -> %v, want ShaderReadOnly -> DepthStencilAttachment", out.SrcLayout, out.DstLayout)
	}
	if !out.Clear.IsDepthStencil() {
		t.Errorf("Clear = %v, want the import's depth clear", out.Clear)
	}
}

func TestBufferBarriers(t *testing.T) {
	g := NewGraph(newTestContext(t), "buffers")
	g.Registry().ImportBuffer("vertices", 90)
	g.AddComputePass("cull", func(b *Builder) {
		b.WriteBuffer("draws", BufferSpec{Size: 1024, Usage: gputypes.BufferUsageIndirect})
	}, nil)
	g.AddPass("draw", func(b *Builder) {
		b.ReadBuffer("draws", gputypes.BufferUsageIndirect)
		b.ReadBuffer("vertices", gputypes.BufferUsageVertex)
		b.WriteSwapchainColor()
	}, nil)
	plan := compilePlan(t, g)

	if got := plan.Names(); len(got) != 2 || got[0] != "cull" {
		t.Fatalf("order = %v, want cull first", got)
	}
	cull := plan.Pass("cull")
	if out := cull.BufferOutputs[0]; out.Stage != rhi.PipelineStageComputeShader || out.Access != rhi.AccessShaderWrite {
		t.Errorf("cull output = %+v", out)
	}

	pre := plan.Pass("draw").PreBarrier
	if len(pre.MemoryBarriers) != 1 {
		t.Fatalf("draw pre-barrier = %+v, want one memory barrier", pre)
	}
	want := rhi.MemoryBarrier{SrcAccess: rhi.AccessShaderWrite, DstAccess: rhi.AccessIndirectCommandRead}
	if pre.MemoryBarriers[0] != want {
		t.Errorf("memory barrier = %+v, want %+v", pre.MemoryBarriers[0], want)
	}
	if pre.SrcStage != rhi.PipelineStageComputeShader || pre.DstStage != rhi.PipelineStageDrawIndirect {
		t.Errorf("stages = %v -> %v", pre.SrcStage, pre.DstStage)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *Graph)
		want  error
	}{
		{
			name: "unwritten buffer",
			build: func(g *Graph) {
				g.AddPass("draw", func(b *Builder) {
					b.ReadBuffer("ghost", gputypes.BufferUsageVertex)
					b.WriteSwapchainColor()
				}, nil)
			},
			want: ErrUnwrittenResource,
		},
		{
			name: "texture without spec",
			build: func(g *Graph) {
				g.AddPass("a", func(b *Builder) { b.Write("bare", AttachmentSpec{}) }, nil)
			},
			want: ErrInvalidAttachment,
		},
		{
			name: "buffer without size",
			build: func(g *Graph) {
				g.AddComputePass("a", func(b *Builder) { b.WriteBuffer("bare", BufferSpec{}) }, nil)
			},
			want: ErrInvalidAttachment,
		},
		{
			name: "depth format with color clear",
			build: func(g *Graph) {
				spec := Fixed(gputypes.TextureFormatDepth32Float, 8, 8, rhi.ClearColor(gputypes.ColorBlack))
				g.AddPass("a", func(b *Builder) { b.Write("bad", spec) }, nil)
			},
			want: ErrInvalidAttachment,
		},
		{
			name: "texture read as buffer",
			build: func(g *Graph) {
				g.AddPass("a", func(b *Builder) { b.Write("t", colorSpec) }, nil)
				g.AddPass("b", func(b *Builder) {
					b.ReadBuffer("t", gputypes.BufferUsageUniform)
					b.WriteSwapchainColor()
				}, nil)
			},
			want: ErrResourceKindChanged,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph(newTestContext(t), tt.name)
			tt.build(g)
			if _, err := g.compile(); !errors.Is(err, tt.want) {
				t.Errorf("compile() error = %v, want %v", err, tt.want)
			}
		})
	}
}
