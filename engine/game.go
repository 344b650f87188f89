package engine

import (
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/renderer"
)

// Game is the set of callbacks the engine drives. Only FnInitialize is
// required.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnResize        OnResize
	FnOnConfigChanged OnConfigChanged
	FnShutdown        Shutdown
}

// Initialize declares the game's passes on the renderer's graph.
type Initialize func(r *renderer.Renderer) error
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type OnConfigChanged func(cfg *core.Config) error
type Shutdown func() error
