package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the bursts of events a single save produces.
var reloadDelay = 200 * time.Millisecond

// Watch reloads the config at path whenever it is saved and hands the result
// to onChange, until ctx is cancelled. The parent directory is watched so
// rename-saves and ConfigMap symlink swaps are seen. A file that fails to
// load is logged and skipped; the caller keeps its previous Config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return watch(ctx, path, os.LookupEnv, onChange)
}

func watch(ctx context.Context, path string, lookup func(string) (string, bool), onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", path)

	prev, _ := load(path, lookup)
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path && filepath.Base(ev.Name) != "..data" {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				settle.Reset(reloadDelay)
			}

		case <-settle.C:
			cfg, err := load(path, lookup)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
				continue
			}
			if prev != nil && cfg.ETL.Interval != prev.ETL.Interval {
				slog.Warn("config: interval change takes effect after restart",
					"running", prev.ETL.Interval, "configured", cfg.ETL.Interval)
			}
			prev = cfg
			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
