// Package testbed is a demo game exercising the frame graph: a shadow
// map, a depth pre-pass, HDR lighting, a compute bloom pass, tonemapping
// into the swapchain and a UI overlay. Configuration changes toggle and
// resize passes at runtime.
package testbed

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rendergraph"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

const (
	PassShadow   = "shadow"
	PassPrepass  = "depth_prepass"
	PassLighting = "lighting"
	PassBloom    = "bloom"
	PassTonemap  = "tonemap"
	PassUI       = "ui"

	resShadowMap = "shadow_map"
	resDepth     = "depth"
	resHDR       = "hdr"
	resBloomLuma = "bloom_luma"

	// bloomBins is the size of the luminance histogram the bloom pass fills.
	bloomBins = 256
	// maxInstances bounds the animated quad count.
	maxInstances = 4
)

type TestGame struct {
	*engine.Game
	state *gameState
}

type gameState struct {
	logger   *log.Logger
	settings core.RendererSection
	shaders  *shaderSet
	renderer *renderer.Renderer

	elapsed   float64
	instances uint32

	shadowPipeline   rendergraph.ResourceID
	prepassPipeline  rendergraph.ResourceID
	lightingPipeline rendergraph.ResourceID
	bloomPipeline    rendergraph.ResourceID
	tonemapPipeline  rendergraph.ResourceID
	uiPipeline       rendergraph.ResourceID
}

func NewTestGame(ctx *core.Context) (*TestGame, error) {
	shaders, err := loadShaders()
	if err != nil {
		return nil, err
	}
	state := &gameState{
		logger:    ctx.Subsystem("testbed"),
		settings:  ctx.Config.Renderer,
		shaders:   shaders,
		instances: 1,
	}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(ctx.Config),
			State:             state,
		},
		state: state,
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnOnConfigChanged = tg.OnConfigChanged
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

// hdrFormat maps the validated config value to a texture format.
func hdrFormat(name string) gputypes.TextureFormat {
	if strings.EqualFold(name, "rgba32float") {
		return gputypes.TextureFormatRGBA32Float
	}
	return gputypes.TextureFormatRGBA16Float
}

func (g *TestGame) Initialize(r *renderer.Renderer) error {
	s := g.state
	s.renderer = r
	graph := r.Graph()
	swapchainFormat := r.Device().Swapchain().ColorFormat

	graph.AddPass(PassShadow, func(b *rendergraph.Builder) {
		size := s.settings.ShadowMapSize
		b.Write(resShadowMap, rendergraph.Fixed(gputypes.TextureFormatDepth32Float, size, size, rhi.ClearDepthStencil(1, 0)))
		s.shadowPipeline = b.Create(rhi.PipelineDescription{
			Label:  "shadow",
			Vertex: s.shaders.sceneVertex,
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			DepthStencil: &gputypes.DepthStencilState{
				Format:              gputypes.TextureFormatDepth32Float,
				DepthWriteEnabled:   true,
				DepthCompare:        gputypes.CompareFunctionLess,
				DepthBias:           2,
				DepthBiasSlopeScale: 1.5,
			},
		})
	}, s.drawScene(&s.shadowPipeline))

	graph.AddPass(PassPrepass, func(b *rendergraph.Builder) {
		b.Write(resDepth, rendergraph.Relative(gputypes.TextureFormatDepth32Float, 100, rhi.ClearDepthStencil(s.settings.DepthClear, 0)))
		s.prepassPipeline = b.Create(rhi.PipelineDescription{
			Label:  "depth-prepass",
			Vertex: s.shaders.sceneVertex,
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			DepthStencil: &gputypes.DepthStencilState{
				Format:            gputypes.TextureFormatDepth32Float,
				DepthWriteEnabled: true,
				DepthCompare:      gputypes.CompareFunctionLess,
			},
		})
	}, s.drawScene(&s.prepassPipeline))

	graph.AddPass(PassLighting, func(b *rendergraph.Builder) {
		format := hdrFormat(s.settings.HDRFormat)
		b.Read(resShadowMap)
		b.Write(resHDR, rendergraph.Relative(format, 100, rhi.ClearColor(gputypes.ColorBlack)))
		// depth was laid down by the pre-pass and is only tested here
		b.Write(resDepth, rendergraph.AttachmentSpec{})
		frag := s.shaders.sceneFragment
		s.lightingPipeline = b.Create(rhi.PipelineDescription{
			Label:    "lighting",
			Vertex:   s.shaders.sceneVertex,
			Fragment: &frag,
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			ColorTargets: []gputypes.ColorTargetState{{Format: format, WriteMask: gputypes.ColorWriteMaskAll}},
			DepthStencil: &gputypes.DepthStencilState{
				Format:       gputypes.TextureFormatDepth32Float,
				DepthCompare: gputypes.CompareFunctionLessEqual,
			},
		})
	}, s.drawScene(&s.lightingPipeline))

	graph.AddComputePass(PassBloom, func(b *rendergraph.Builder) {
		if !s.settings.Bloom {
			return
		}
		b.Read(resHDR)
		b.WriteBuffer(resBloomLuma, rendergraph.BufferSpec{Size: bloomBins * 4, Usage: gputypes.BufferUsageStorage})
		compute := s.shaders.bloom
		s.bloomPipeline = b.Create(rhi.PipelineDescription{Label: "bloom", Compute: &compute})
	}, func(cmd rhi.CommandList, reg *rendergraph.Registry) {
		ext := graph.Extent()
		cmd.BindPipeline(reg.Pipeline(s.bloomPipeline))
		cmd.Dispatch((ext.Width+7)/8, (ext.Height+7)/8, 1)
	})

	graph.AddPass(PassTonemap, func(b *rendergraph.Builder) {
		b.Read(resHDR)
		if s.settings.Bloom {
			b.ReadBuffer(resBloomLuma, gputypes.BufferUsageStorage)
		}
		b.WriteSwapchainColor()
		frag := s.shaders.postFragment
		s.tonemapPipeline = b.Create(rhi.PipelineDescription{
			Label:        "tonemap",
			Vertex:       s.shaders.postVertex,
			Fragment:     &frag,
			Primitive:    gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
			ColorTargets: []gputypes.ColorTargetState{{Format: swapchainFormat, WriteMask: gputypes.ColorWriteMaskAll}},
		})
	}, func(cmd rhi.CommandList, reg *rendergraph.Registry) {
		cmd.BindPipeline(reg.Pipeline(s.tonemapPipeline))
		cmd.Draw(3, 1, 0, 0)
	})

	graph.AddPass(PassUI, func(b *rendergraph.Builder) {
		if !s.settings.UI {
			return
		}
		b.WriteSwapchainColor()
		frag := s.shaders.uiFragment
		s.uiPipeline = b.Create(rhi.PipelineDescription{
			Label:     "ui",
			Vertex:    s.shaders.uiVertex,
			Fragment:  &frag,
			Primitive: gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
			ColorTargets: []gputypes.ColorTargetState{{
				Format: swapchainFormat,
				Blend: &gputypes.BlendState{
					Color: gputypes.BlendComponent{
						SrcFactor: gputypes.BlendFactorSrcAlpha,
						DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
						Operation: gputypes.BlendOperationAdd,
					},
					Alpha: gputypes.BlendComponent{
						SrcFactor: gputypes.BlendFactorOne,
						DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
						Operation: gputypes.BlendOperationAdd,
					},
				},
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		})
	}, func(cmd rhi.CommandList, reg *rendergraph.Registry) {
		cmd.BindPipeline(reg.Pipeline(s.uiPipeline))
		cmd.Draw(6, 1, 0, 0)
	})

	s.logger.Info("testbed graph declared", "passes", len(graph.Passes()), "bloom", s.settings.Bloom, "ui", s.settings.UI)
	return nil
}

// drawScene draws the instanced quads with the pipeline stored at id.
func (s *gameState) drawScene(id *rendergraph.ResourceID) rendergraph.ExecuteFunc {
	return func(cmd rhi.CommandList, reg *rendergraph.Registry) {
		cmd.BindPipeline(reg.Pipeline(*id))
		cmd.Draw(6, s.instances, 0, 0)
	}
}

// Update animates the number of quads, one more every second.
func (g *TestGame) Update(deltaTime float64) error {
	s := g.state
	s.elapsed += deltaTime
	s.instances = 1 + uint32(s.elapsed)%maxInstances
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	g.state.logger.Debug("testbed resized", "width", width, "height", height)
	return nil
}

// OnConfigChanged marks the passes whose declarations depend on a
// changed setting. Clear colors are pushed by the renderer itself.
func (g *TestGame) OnConfigChanged(cfg *core.Config) error {
	s := g.state
	if s.renderer == nil {
		return fmt.Errorf("testbed: config changed before initialize")
	}
	old, next := s.settings, cfg.Renderer
	s.settings = next

	graph := s.renderer.Graph()
	var dirty []string
	mark := func(names ...string) {
		for _, n := range names {
			graph.MarkDirty(n)
			dirty = append(dirty, n)
		}
	}
	if old.ShadowMapSize != next.ShadowMapSize {
		mark(PassShadow)
	}
	if old.DepthClear != next.DepthClear {
		mark(PassPrepass)
	}
	if hdrFormat(old.HDRFormat) != hdrFormat(next.HDRFormat) {
		mark(PassLighting)
	}
	if old.Bloom != next.Bloom {
		// the tonemap pass reads what bloom writes
		mark(PassBloom, PassTonemap)
	}
	if old.UI != next.UI {
		mark(PassUI)
	}
	if len(dirty) > 0 {
		s.logger.Info("testbed settings changed", "dirty", strings.Join(dirty, ","))
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	g.state.logger.Info("testbed shutting down", "elapsed", fmt.Sprintf("%.2fs", g.state.elapsed))
	return nil
}
