package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/config"
)

// WatchConfig applies engine option changes written to the configer's
// config.toml until ctx is done. Changes take effect from the next tick.
// An invalid file is logged and the current options are kept.
func (e *Engine) WatchConfig(ctx context.Context, cfger *config.Configer) error {
	path := cfger.GetTarget()
	if path == "" {
		return fmt.Errorf("watching config: no config directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors and Configer.SaveConfig may replace the file, so watch the
	// directory rather than the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			e.reloadOptions(cfger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (e *Engine) reloadOptions(cfger *config.Configer) {
	cfg, err := cfger.LoadConfig()
	if err != nil {
		e.logger.Warn("ignoring config change", zap.Error(err))
		return
	}
	if cfg.Engine == e.Options() {
		return
	}
	if err := e.SetOptions(cfg.Engine); err != nil {
		e.logger.Warn("ignoring config change", zap.Error(err))
	}
}
