package session

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"github.com/microsoft/devrun/pkg/resiliency"
)

const (
	// Editors tend to produce bursts of filesystem events per save; reloads are
	// debounced so one save triggers one reload.
	reloadDebounceDelay    = 250 * time.Millisecond
	reloadDebounceMaxDelay = 2 * time.Second
)

// watchForChanges observes the project tree rooted at root and invokes onChange
// (debounced) whenever source files change. The caller owns the returned watcher
// and must close it when the session ends.
func watchForChanges(ctx context.Context, root string, onChange func(), log logr.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isIgnoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if walkErr != nil {
		_ = watcher.Close()
		return nil, walkErr
	}

	debounce := resiliency.NewDebounceAction(onChange, reloadDebounceDelay, reloadDebounceMaxDelay)

	go func() {
		for {
			select {

			case <-ctx.Done():
				return

			case event, isOpen := <-watcher.Events:
				if !isOpen {
					return
				}
				if isIgnoredDir(filepath.Base(event.Name)) {
					continue
				}

				// New directories must be added to the watch; fsnotify watches are not recursive.
				if event.Has(fsnotify.Create) {
					if addErr := watcher.Add(event.Name); addErr != nil {
						log.V(1).Info("could not watch new path", "path", event.Name, "error", addErr.Error())
					}
				}

				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					log.V(1).Info("source change detected", "path", event.Name)
					debounce.Run(ctx)
				}

			case watchErr, isOpen := <-watcher.Errors:
				if !isOpen {
					return
				}
				log.Error(watchErr, "file watcher error")
			}
		}
	}()

	return watcher, nil
}

// Hidden directories and build output are not application source.
func isIgnoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "build" || name == "out"
}
