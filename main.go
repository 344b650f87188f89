/*
This is an example of application that will use the
engine package to drive the testbed frame graph
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/anima-framegraph/engine"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi/headless"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer/rhi/vulkan"
	"github.com/spaghettifunk/anima-framegraph/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path of the TOML configuration")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until interrupted")
	fps := flag.Float64("fps", 60, "frame rate cap, 0 disables it")
	logLevel := flag.String("log-level", "", "override the configured log level")
	useHeadless := flag.Bool("headless", false, "record frames in memory instead of on a GPU")
	watch := flag.Bool("watch", true, "reload the configuration when the file changes")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}
	if *logLevel != "" {
		cfg.Application.LogLevel = *logLevel
	}
	ctx, err := core.NewContext(cfg)
	if err != nil {
		log.Fatal("failed to create engine context", "err", err)
	}
	logger := ctx.Subsystem("main")

	tb, err := testbed.NewTestGame(ctx)
	if err != nil {
		logger.Fatal("failed to create testbed", "err", err)
	}
	tb.ApplicationConfig.MaxFrames = *frames
	tb.ApplicationConfig.TargetFrameRate = *fps

	e, err := engine.New(ctx, tb.Game, newDevice(ctx, *useHeadless))
	if err != nil {
		logger.Fatal("failed to create engine", "err", err)
	}
	if err := e.Initialize(); err != nil {
		logger.Fatal("failed to initialize engine", "err", err)
	}

	if *watch {
		if _, err := os.Stat(ctx.Path(*configPath)); err == nil {
			if err := ctx.Watch(ctx.Path(*configPath)); err != nil {
				logger.Warn("config hot reload disabled", "err", err)
			}
		}
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the loop owns the engine, so only ask it to quit
	go func() {
		sig := <-sigCh
		logger.Info("signal received", "signal", sig)
		ctx.Events.Post(core.EventApplicationQuit, nil, core.EventContext{})
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		logger.Error("engine shutdown failed", "err", err)
	}
	if err := ctx.Shutdown(); err != nil {
		logger.Error("context shutdown failed", "err", err)
	}
	if runErr != nil {
		logger.Error("engine stopped", "err", runErr)
		os.Exit(1)
	}
}

// newDevice prefers the vulkan device and falls back to the headless one
// when no loader or GPU is available.
func newDevice(ctx *core.Context, headlessOnly bool) rhi.Device {
	app := ctx.Config.Application
	logger := ctx.Subsystem("main")
	if !headlessOnly {
		opts := vulkan.DefaultOptions()
		opts.AppName = app.Name
		opts.Width, opts.Height = app.Width, app.Height
		opts.FramesInFlight = app.FramesInFlight
		d, err := vulkan.New(ctx, opts)
		if err == nil {
			return d
		}
		logger.Warn("vulkan unavailable, falling back to the headless device", "err", err)
	}
	opts := headless.DefaultOptions()
	opts.Width, opts.Height = app.Width, app.Height
	logger.Info("using headless device", "width", opts.Width, "height", opts.Height)
	return headless.New(opts)
}
