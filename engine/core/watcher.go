package core

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads the configuration file whenever it changes and
// posts EventConfigChanged with the new values. Invalid edits are logged
// and ignored so a half-saved file never reaches the renderer.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	events  *EventBus
	logger  *log.Logger
	done    chan struct{}
}

func NewConfigWatcher(ctx *Context, path string) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	// editors replace files on save, so watch the directory
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	cw := &ConfigWatcher{
		path:    abs,
		watcher: w,
		events:  ctx.Events,
		logger:  ctx.Subsystem("config"),
		done:    make(chan struct{}),
	}
	go cw.run()
	cw.logger.Debug("watching config", "path", abs)
	return cw, nil
}

func (cw *ConfigWatcher) run() {
	defer close(cw.done)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("config watcher", "err", err)
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := LoadConfig(cw.path)
	if err != nil {
		cw.logger.Warn("ignoring config change", "err", err)
		return
	}
	cw.logger.Info("config reloaded", "path", cw.path)
	cw.events.Post(EventConfigChanged, cw, EventContext{Config: cfg})
}

func (cw *ConfigWatcher) Close() error {
	err := cw.watcher.Close()
	<-cw.done
	return err
}
