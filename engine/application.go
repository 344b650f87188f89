package engine

import "github.com/spaghettifunk/anima-framegraph/engine/core"

type ApplicationConfig struct {
	// The application name used in logs and by the device.
	Name string
	// Starting framebuffer width.
	StartWidth uint32
	// Starting framebuffer height.
	StartHeight uint32
	// MaxFrames stops the loop after that many rendered frames. Zero runs
	// until an EventApplicationQuit is fired.
	MaxFrames uint64
	// TargetFrameRate caps the loop. Zero renders as fast as the device
	// accepts frames.
	TargetFrameRate float64
}

// NewApplicationConfig takes the name and the starting size from cfg.
func NewApplicationConfig(cfg *core.Config) *ApplicationConfig {
	return &ApplicationConfig{
		Name:        cfg.Application.Name,
		StartWidth:  cfg.Application.Width,
		StartHeight: cfg.Application.Height,
	}
}
