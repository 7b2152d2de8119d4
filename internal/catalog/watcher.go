package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch invalidates the catalog whenever a visible file in one of dirs is
// created, written, removed or renamed. The rebuild itself still happens on the
// next list request. Watching stops when ctx is done.
func (c *Catalog) Watch(ctx context.Context, dirs ...string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		log.Info("Watching directory for changes", "dir", dir)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if strings.HasPrefix(filepath.Base(event.Name), ".") {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				c.Invalidate()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", "err", err)
			}
		}
	}()
	return nil
}
