package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

var stageNames = [...]string{
	EngineStageUninitialized: "uninitialized",
	EngineStageBooting:       "booting",
	EngineStageBootComplete:  "boot-complete",
	EngineStageInitializing:  "initializing",
	EngineStageInitialized:   "initialized",
	EngineStageRunning:       "running",
	EngineStageShuttingDown:  "shutting-down",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// maxFrameDelta caps the delta handed to the game, in seconds.
const maxFrameDelta = 0.25

type Engine struct {
	ctx          *core.Context
	logger       *log.Logger
	currentStage Stage
	gameInstance *Game
	renderer     *renderer.Renderer
	isRunning    bool
	isSuspended  bool
	width        uint32
	height       uint32
	clock        *core.Clock
	metrics      *core.Metrics
	lastTime     float64
	frames       uint64
}

// New boots the engine around device. The engine owns the device from
// here on and releases it in Shutdown.
func New(ctx *core.Context, g *Game, device rhi.Device) (*Engine, error) {
	if g == nil || g.FnInitialize == nil {
		return nil, errors.New("engine: game has no initialize callback")
	}
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = NewApplicationConfig(ctx.Config)
	}
	e := &Engine{
		ctx:          ctx,
		logger:       ctx.Subsystem("engine"),
		currentStage: EngineStageBooting,
		gameInstance: g,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}
	e.renderer = renderer.New(ctx, device)
	e.currentStage = EngineStageBootComplete
	e.logger.Debug("engine booted", "app", g.ApplicationConfig.Name)
	return e, nil
}

func (e *Engine) Stage() Stage                 { return e.currentStage }
func (e *Engine) Renderer() *renderer.Renderer { return e.renderer }
func (e *Engine) Metrics() *core.Metrics       { return e.metrics }

// Frames returns how many frames the loop rendered.
func (e *Engine) Frames() uint64 { return e.frames }

// GetFramebufferSize returns the width and height (in this order) of the
// application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("engine: initialize in stage %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	e.ctx.Events.Register(core.EventApplicationQuit, e, e.onEvent)
	e.ctx.Events.Register(core.EventResized, e, e.onResized)
	e.ctx.Events.Register(core.EventConfigChanged, e, e.onConfigChanged)

	if err := e.gameInstance.FnInitialize(e.renderer); err != nil {
		return fmt.Errorf("game initialize failed: %w", err)
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	e.logger.Info("engine initialized", "passes", len(e.renderer.Graph().Passes()))
	return nil
}

// Run drives the frame loop on the calling goroutine until a quit event
// arrives, MaxFrames is reached or a frame fails. A stopped engine can be
// run again.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine: run in stage %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning = true
	defer func() {
		if e.currentStage == EngineStageRunning {
			e.currentStage = EngineStageInitialized
		}
	}()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	cfg := e.gameInstance.ApplicationConfig
	var targetFrameSeconds float64
	if cfg.TargetFrameRate > 0 {
		targetFrameSeconds = 1.0 / cfg.TargetFrameRate
	}
	var sinceReport float64

	for e.isRunning {
		e.ctx.Events.Dispatch()
		if !e.isRunning {
			break
		}
		if e.isSuspended {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		// a long stall, e.g. while suspended, must not become one huge step
		delta := math.Clamp(currentTime-e.lastTime, 0, maxFrameDelta)
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				e.logger.Error("game update failed, shutting down", "err", err)
				e.isRunning = false
				return err
			}
		}

		if err := e.renderer.DrawFrame(); err != nil {
			e.logger.Error("frame failed, shutting down", "frame", e.frames, "err", err)
			e.isRunning = false
			return err
		}
		e.frames++

		// Figure out how long the frame took and, if below the target,
		// give the rest back to the OS.
		frameElapsed := time.Since(frameStart).Seconds()
		if remaining := targetFrameSeconds - frameElapsed; remaining > 0 {
			time.Sleep(time.Duration(remaining * float64(time.Second)))
		}
		e.metrics.Update(time.Since(frameStart).Seconds())

		sinceReport += delta
		if sinceReport >= 1 {
			fps, ms := e.metrics.Frame()
			e.logger.Debug("frame stats", "fps", fps, "ms", fmt.Sprintf("%.3f", ms), "frames", e.frames)
			sinceReport = 0
		}

		if cfg.MaxFrames > 0 && e.frames >= cfg.MaxFrames {
			e.logger.Info("frame limit reached", "frames", e.frames)
			e.isRunning = false
		}
		e.lastTime = currentTime
	}
	e.clock.Stop()
	return nil
}

// Shutdown stops the game and releases the renderer and its device. The
// context stays usable and is shut down by its owner.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	e.ctx.Events.Unregister(core.EventApplicationQuit, e)
	e.ctx.Events.Unregister(core.EventResized, e)
	e.ctx.Events.Unregister(core.EventConfigChanged, e)

	var err error
	if e.gameInstance.FnShutdown != nil {
		err = e.gameInstance.FnShutdown()
	}
	e.renderer.Shutdown()
	submitted, skipped := e.renderer.Frames()
	e.logger.Info("engine shut down", "frames", submitted, "skipped", skipped)
	return err
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EventApplicationQuit:
		e.logger.Info("EventApplicationQuit received, shutting down")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	e.resize(width, height)
	// other listeners may care about the new size as well
	return false
}

func (e *Engine) resize(width, height uint32) {
	// Check if different. If so, trigger a resize.
	if width == e.width && height == e.height {
		return
	}
	e.width = width
	e.height = height
	e.logger.Debug("framebuffer resize", "width", width, "height", height)

	// Handle minimization
	if width == 0 || height == 0 {
		e.logger.Info("framebuffer minimized, suspending application")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		e.logger.Info("framebuffer restored, resuming application")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			e.logger.Error("game resize failed", "err", err)
		}
	}
	if err := e.renderer.Resize(width, height); err != nil {
		e.logger.Error("renderer resize failed", "err", err)
	}
}

func (e *Engine) onConfigChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	cfg := data.Config
	if cfg == nil {
		return false
	}
	e.ctx.Config = cfg
	e.renderer.ApplySettings(cfg.Renderer)
	if e.gameInstance.FnOnConfigChanged != nil {
		if err := e.gameInstance.FnOnConfigChanged(cfg); err != nil {
			e.logger.Error("game rejected the new config", "err", err)
		}
	}
	e.resize(cfg.Application.Width, cfg.Application.Height)
	return false
}
