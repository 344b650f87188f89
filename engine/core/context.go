package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Context is the engine state shared by every subsystem. It replaces a
// process-wide singleton: build it once at startup, pass it down, and
// call Shutdown when done.
type Context struct {
	Logger    *log.Logger
	Events    *EventBus
	Config    *Config
	SessionID uuid.UUID

	// RootDir is the directory the configuration was loaded from. Relative
	// asset paths resolve against it.
	RootDir string

	fatalHandler func(error)
	watcher      *ConfigWatcher
}

type ContextOption func(*Context)

// WithLogOutput sends the log to w instead of stderr.
func WithLogOutput(w io.Writer) ContextOption {
	return func(c *Context) {
		c.Logger.SetOutput(w)
	}
}

// WithFatalHandler replaces the process exit on fatal errors. Tests use it
// to turn programmer errors into panics they can recover.
func WithFatalHandler(fn func(error)) ContextOption {
	return func(c *Context) {
		c.fatalHandler = fn
	}
}

func WithRootDir(dir string) ContextOption {
	return func(c *Context) {
		c.RootDir = dir
	}
}

func NewContext(cfg *Config, opts ...ContextOption) (*Context, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(os.Stderr, cfg.Application.LogLevel)
	if err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	ctx := &Context{
		Logger:    logger,
		Events:    NewEventBus(),
		Config:    cfg,
		SessionID: uuid.New(),
		RootDir:   wd,
	}
	for _, opt := range opts {
		opt(ctx)
	}
	ctx.Logger = ctx.Logger.With("session", ctx.SessionID.String()[:8])
	ctx.Logger.Debug("engine context created", "root", ctx.RootDir)
	return ctx, nil
}

// Path resolves p against the root directory.
func (c *Context) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootDir, p)
}

// Subsystem derives a prefixed logger for a subsystem.
func (c *Context) Subsystem(name string) *log.Logger {
	return c.Logger.WithPrefix(name)
}

// Fatal reports a programmer error. It never returns.
func (c *Context) Fatal(err error) {
	if c.fatalHandler != nil {
		c.fatalHandler(err)
		// a handler that returns would let the caller continue on a broken
		// invariant
		panic(err)
	}
	c.Logger.Helper()
	c.Logger.Fatal(err.Error())
}

// Watch starts hot reloading the configuration file at path.
func (c *Context) Watch(path string) error {
	if c.watcher != nil {
		return errors.New("config watcher already running")
	}
	w, err := NewConfigWatcher(c, path)
	if err != nil {
		return err
	}
	c.watcher = w
	return nil
}

func (c *Context) Shutdown() error {
	var err error
	if c.watcher != nil {
		err = c.watcher.Close()
		c.watcher = nil
	}
	c.Events.Shutdown()
	c.Logger.Debug("engine context shut down")
	return err
}
