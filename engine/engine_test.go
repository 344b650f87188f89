package engine

import (
	"errors"
	"io"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rendergraph"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi/headless"
)

type testGame struct {
	*Game
	device  *headless.Device
	updates int
	resizes [][2]uint32
	configs int
	closed  bool
}

func newTestEngine(t *testing.T, maxFrames uint64) (*Engine, *testGame, *core.Context) {
	t.Helper()
	ctx, err := core.NewContext(nil, core.WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	tg := &testGame{device: headless.New(headless.DefaultOptions())}
	tg.Game = &Game{
		ApplicationConfig: &ApplicationConfig{Name: "test", StartWidth: 1280, StartHeight: 720, MaxFrames: maxFrames},
		FnInitialize: func(r *renderer.Renderer) error {
			r.Graph().AddPass("present", func(b *rendergraph.Builder) {
				b.WriteSwapchainColor()
			}, func(cmd rhi.CommandList, reg *rendergraph.Registry) {
				cmd.Draw(3, 1, 0, 0)
			})
			return nil
		},
		FnUpdate: func(float64) error {
			tg.updates++
			return nil
		},
		FnOnResize: func(w, h uint32) error {
			tg.resizes = append(tg.resizes, [2]uint32{w, h})
			return nil
		},
		FnOnConfigChanged: func(*core.Config) error {
			tg.configs++
			return nil
		},
		FnShutdown: func() error {
			tg.closed = true
			return nil
		},
	}
	e, err := New(ctx, tg.Game, tg.device)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return e, tg, ctx
}

func TestEngineRunsFrameLimit(t *testing.T) {
	e, tg, _ := newTestEngine(t, 5)
	if e.Stage() != EngineStageInitialized {
		t.Fatalf("Stage() = %s, want initialized", e.Stage())
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if e.Frames() != 5 || tg.updates != 5 {
		t.Errorf("frames = %d, updates = %d, want 5, 5", e.Frames(), tg.updates)
	}
	if got := len(tg.device.Frames()); got != 5 {
		t.Errorf("device frames = %d, want 5", got)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !tg.closed || e.Stage() != EngineStageShuttingDown {
		t.Errorf("after Shutdown closed = %v, stage = %s", tg.closed, e.Stage())
	}
	if err := e.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestEngineQuitEvent(t *testing.T) {
	e, tg, ctx := newTestEngine(t, 0)
	defer e.Shutdown()
	tg.FnUpdate = func(float64) error {
		tg.updates++
		if tg.updates == 3 {
			ctx.Events.Post(core.EventApplicationQuit, nil, core.EventContext{})
		}
		return nil
	}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if e.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", e.Frames())
	}
}

func TestEngineResizeEvents(t *testing.T) {
	e, tg, ctx := newTestEngine(t, 4)
	defer e.Shutdown()
	tg.FnUpdate = func(float64) error {
		tg.updates++
		if tg.updates != 1 {
			return nil
		}
		// minimise, then restore at a new size
		for _, size := range [][2]uint32{{0, 0}, {800, 600}} {
			var data core.EventContext
			data.Data.U32[0], data.Data.U32[1] = size[0], size[1]
			ctx.Events.Post(core.EventResized, nil, data)
		}
		return nil
	}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	want := [][2]uint32{{1280, 720}, {800, 600}}
	if len(tg.resizes) != len(want) || tg.resizes[0] != want[0] || tg.resizes[1] != want[1] {
		t.Errorf("resizes = %v, want %v", tg.resizes, want)
	}
	if got := tg.device.Swapchain().Extent; got != (rhi.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("swapchain extent = %v, want 800x600", got)
	}
	if w, h := e.GetFramebufferSize(); w != 800 || h != 600 {
		t.Errorf("GetFramebufferSize() = %d, %d", w, h)
	}
}

func TestEngineConfigChanged(t *testing.T) {
	e, tg, ctx := newTestEngine(t, 2)
	defer e.Shutdown()
	cfg := core.DefaultConfig()
	cfg.Renderer.ClearColor = [4]float64{0, 0, 1, 1}
	ctx.Events.Post(core.EventConfigChanged, nil, core.EventContext{Config: cfg})
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if tg.configs != 1 || ctx.Config != cfg {
		t.Errorf("configs = %d, config replaced = %v", tg.configs, ctx.Config == cfg)
	}
	want := gputypes.Color{B: 1, A: 1}
	for _, cmd := range tg.device.LastFrame().Commands {
		if cmd.Type != headless.CmdBeginRenderPass {
			continue
		}
		if cmd.Clears[0].Color != want {
			t.Errorf("swapchain clear = %v, want %v", cmd.Clears[0].Color, want)
		}
		return
	}
	t.Error("no render pass recorded")
}

func TestEngineUpdateError(t *testing.T) {
	e, tg, _ := newTestEngine(t, 0)
	defer e.Shutdown()
	boom := errors.New("boom")
	tg.FnUpdate = func(float64) error { return boom }
	if err := e.Run(); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

func TestEngineStages(t *testing.T) {
	ctx, err := core.NewContext(nil, core.WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(ctx, &Game{}, headless.New(headless.DefaultOptions())); err == nil {
		t.Error("New() without FnInitialize succeeded")
	}
	e, _, _ := newTestEngine(t, 1)
	defer e.Shutdown()
	if err := e.Initialize(); err == nil {
		t.Error("second Initialize() succeeded")
	}
	if got := EngineStageRunning.String(); got != "running" {
		t.Errorf("String() = %q, want running", got)
	}
	if got := Stage(42).String(); got != "Stage(42)" {
		t.Errorf("String() = %q", got)
	}
}
