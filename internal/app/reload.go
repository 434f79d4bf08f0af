package app

import (
	"context"
	"path/filepath"
	"strings"

	"multibot/internal/config"

	"github.com/fsnotify/fsnotify"
)

// watchConfig re-reads the config file when it changes and applies the
// settings that are safe to change at runtime (currently the log level).
// Risk limits and trading parameters stay fixed for the process lifetime
// so in-flight trades never see their constraints move.
func (a *App) watchConfig(ctx context.Context) error {
	if strings.TrimSpace(a.cfgPath) == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		a.log.Warn("config watcher unavailable", "error", err)
		<-ctx.Done()
		return nil
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch held on the file itself.
	if err := watcher.Add(filepath.Dir(a.cfgPath)); err != nil {
		a.log.Warn("config watch failed", "path", a.cfgPath, "error", err)
		<-ctx.Done()
		return nil
	}

	target := filepath.Clean(a.cfgPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				a.log.Warn("config reload failed, keeping current settings", "error", err)
				continue
			}
			if cfg.App.LogLevel != a.cfg.App.LogLevel {
				a.log.Info("log level changed", "from", a.cfg.App.LogLevel, "to", cfg.App.LogLevel)
				a.log.SetLevel(cfg.App.LogLevel)
				a.cfg.App.LogLevel = cfg.App.LogLevel
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("config watcher error", "error", err)
		}
	}
}
