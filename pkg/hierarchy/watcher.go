package hierarchy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pariksha-io/pariksha/pkg/observability"
)

// Watcher reloads a region file into a Tree when the file changes. Editors
// typically fire several events per save, so reloads are debounced; a file
// that fails to parse or validate leaves the previous snapshot in place.
type Watcher struct {
	path   string
	tree   *Tree
	logger *observability.Logger

	// Debounce is the quiet period after the last event before reloading.
	// Zero means the default of two seconds.
	Debounce time.Duration
}

// NewWatcher creates a watcher for the region file at path
func NewWatcher(path string, tree *Tree, logger *observability.Logger) *Watcher {
	return &Watcher{
		path:   path,
		tree:   tree,
		logger: logger.WithField("component", "hierarchy-watcher"),
	}
}

// Run watches until the context is canceled. The watch is on the containing
// directory because editors replace files by rename, which drops a watch on
// the file itself.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	w.logger.WithField("path", w.path).Info("watching region file")

	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(debounce)

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}

// Reload loads the file immediately, outside the watch loop. Used at
// startup and by tests.
func (w *Watcher) Reload() error {
	idx, err := LoadIndexFromFile(w.path)
	if err != nil {
		return err
	}
	w.tree.Swap(idx)
	return nil
}

func (w *Watcher) reload() {
	idx, err := LoadIndexFromFile(w.path)
	if err != nil {
		w.logger.WithError(err).Error("region file rejected, keeping previous snapshot")
		return
	}

	w.tree.Swap(idx)
	states, districts, schools, classes := idx.Counts()
	w.logger.WithFields(map[string]interface{}{
		"states":    states,
		"districts": districts,
		"schools":   schools,
		"classes":   classes,
	}).Info("region file reloaded")
}
