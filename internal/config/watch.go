package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the event burst an atomic save produces
// (create + write + rename land within milliseconds) into one reload.
const debounceWindow = 200 * time.Millisecond

// Watch monitors the settings document at path and invokes onChange with
// the reloaded document and the hot-reloadable keys that differ from the
// previous one. baseline is the document the caller currently holds; it
// seeds the first comparison. Watch runs until ctx is cancelled.
//
// The primary cycle re-reads the file at every cycle boundary regardless;
// Watch exists so an operator edit is surfaced immediately instead of up
// to one full interval later. An edit that fails to parse is reported in
// the log and skipped; onChange is only called with valid documents.
func Watch(ctx context.Context, path string, baseline *Config, onChange func(next *Config, changed []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	slog.Info("config: watching for edits", "path", path)

	prev := baseline
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(debounceWindow)

		case <-pending:
			pending = nil
			// A rename-style save replaces the inode, dropping the watch.
			_ = watcher.Add(path)

			next, err := Load(path)
			if err != nil {
				slog.Warn("config: edit ignored, document unreadable", "path", path, "error", err)
				continue
			}
			changed := ChangedKeys(prev, next)
			prev = next
			slog.Info("config: document edited", "path", path, "changed_keys", changed)
			onChange(next, changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: watch error", "error", err)
		}
	}
}
