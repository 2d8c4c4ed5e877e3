package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// manifestWatcher reports writes to a manifest file, or to any manifest
// below a directory.
type manifestWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	dir     bool
}

// newManifestWatcher registers the watches before returning, so changes made
// after it returns are never missed.
func newManifestWatcher(path string) (*manifestWatcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	mw := &manifestWatcher{watcher: w, path: path, dir: fi.IsDir()}

	dirs := []string{filepath.Dir(path)}
	if mw.dir {
		// fsnotify is not recursive; watch every directory holding a manifest.
		dirs = []string{path}
		found, _ := findManifests(path)
		for _, f := range found {
			dirs = append(dirs, filepath.Dir(f))
		}
	}
	seen := map[string]bool{}
	for _, d := range dirs {
		if seen[d] {
			continue
		}
		seen[d] = true
		if err := w.Add(d); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
		}
		log.Debug("fsnotify watching dir", "dir", d)
	}
	return mw, nil
}

func (mw *manifestWatcher) Close() error {
	return mw.watcher.Close()
}

func (mw *manifestWatcher) relevant(name string) bool {
	if !mw.dir {
		return name == mw.path
	}
	base := filepath.Base(name)
	for _, p := range manifestPatterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Run calls fn once per burst of changes, after the burst has been quiet for
// debounce. Errors from fn are logged and watching continues. Run returns
// when ctx ends.
func (mw *manifestWatcher) Run(ctx context.Context, debounce time.Duration, fn func() error) error {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-mw.watcher.Events:
			if !ok {
				return nil
			}
			if !mw.relevant(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			timer.Reset(debounce)

		case <-timer.C:
			if err := fn(); err != nil {
				log.Error("rerun failed", "path", mw.path, "error", err)
			}

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "path", mw.path, "error", err)
		}
	}
}
