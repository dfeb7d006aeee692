package router

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a router's keyword file when it changes on disk.
type Watcher struct {
	router  *Router
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher that reloads keywords from path into the
// router. The file's directory is watched so editor rename-and-replace
// writes are picked up.
func NewWatcher(r *Router, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{router: r, path: path, watcher: fw}, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			kw, err := LoadKeywords(w.path)
			if err != nil {
				log.Printf("[router] keyword reload failed, keeping current set: %v", err)
				continue
			}
			w.router.SetKeywords(kw)
			log.Printf("[router] reloaded keywords from %s", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[router] watch error: %v", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
