package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the freshly loaded config on
// every successful reload. It runs until ctx is cancelled. A reload that
// fails to parse or validate is logged and the previous config stays active.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log.Info("watching config for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often replace the file via rename, which arrives as
			// Create on the watched path.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				log.Error("config reload failed, keeping previous config", "path", path, "error", err)
				continue
			}

			log.Info("config reloaded", "path", path)
			onChange(cfg)

			// An atomic save replaces the inode; re-add to keep watching.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error", "error", err)
		}
	}
}
