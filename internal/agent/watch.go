package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// TableWatcher reloads an Agent's tables when the tables file changes.
// A file that fails to parse is logged and the previous tables stay active.
type TableWatcher struct {
	agent    *Agent
	path     string
	onReload func(*Tables, error)
}

// NewTableWatcher creates a watcher for path. onReload, if non-nil, is called
// after every reload attempt.
func NewTableWatcher(a *Agent, path string, onReload func(*Tables, error)) *TableWatcher {
	return &TableWatcher{agent: a, path: path, onReload: onReload}
}

// Run watches until ctx is cancelled. The parent directory is watched so that
// editors which replace the file on save are picked up.
func (w *TableWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("tables watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *TableWatcher) reload() {
	t, err := LoadTables(w.path)
	if err != nil {
		slog.Warn("reloading tables failed, keeping previous tables", "path", w.path, "error", err)
	} else {
		w.agent.SetTables(t)
		slog.Info("tables reloaded", "path", w.path, "intents", len(t.Intents))
	}
	if w.onReload != nil {
		w.onReload(t, err)
	}
}
