package rules

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path on every write and hands the new rule table to onChange.
// A table that fails to load or validate is logged and skipped, leaving the
// previous one active. Watch returns when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*RuleSet)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("rules: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			rs, err := Load(path)
			if err != nil {
				slog.Error("rules: reload failed, keeping previous table", "path", path, "err", err)
				continue
			}

			slog.Info("rules: reloaded", "path", path, "version", rs.Version)
			onChange(rs)

			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("rules: watcher error", "err", err)
		}
	}
}
