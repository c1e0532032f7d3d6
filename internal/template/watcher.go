package template

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the name (relative to the template directory) of a
// template file that was written or created.
type ChangeFunc func(name string)

// Watcher reports template files changing on disk so live contexts can
// reload them.
type Watcher struct {
	dir      string
	onChange ChangeFunc
	logger   *slog.Logger
}

// NewWatcher returns a watcher for dir. onChange must not be nil.
func NewWatcher(dir string, onChange ChangeFunc, logger *slog.Logger) *Watcher {
	if onChange == nil {
		panic("template: onChange must not be nil")
	}
	return &Watcher{dir: dir, onChange: onChange, logger: logger}
}

func (w *Watcher) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}

// Run watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("template watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("template watcher: watch %s: %w", w.dir, err)
	}
	w.log().Info("watching templates", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			name, err := filepath.Rel(w.dir, ev.Name)
			if err != nil {
				name = filepath.Base(ev.Name)
			}
			w.log().Debug("template changed", "file", name, "op", ev.Op.String())
			w.onChange(name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log().Warn("template watcher error", "error", err)
		}
	}
}
