package project

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of file events into one notification.
const DefaultDebounce = 100 * time.Millisecond

// Watch watches the project tree until ctx is done. After a burst of
// changes the catalog is invalidated and onChange is called with the
// changed project-relative paths. New directories are watched as they appear.
func (p *Project) Watch(ctx context.Context, debounce time.Duration, onChange func(paths []string)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := p.watchDirRecursive(watcher, p.root); err != nil {
		return fmt.Errorf("failed to watch project: %w", err)
	}
	p.logger.Debug("watching project", "root", p.root)

	var (
		mu      sync.Mutex
		changed = map[string]bool{}
		timer   *time.Timer
	)
	fire := func() {
		mu.Lock()
		paths := make([]string, 0, len(changed))
		for rel := range changed {
			paths = append(paths, rel)
		}
		changed = map[string]bool{}
		mu.Unlock()

		p.invalidate()
		p.logger.Debug("project files changed", "count", len(paths))
		if onChange != nil {
			onChange(paths)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(p.root, event.Name)
			if err != nil || p.ignored(rel) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// best effort; a created file is not a directory
				_ = p.watchDirRecursive(watcher, event.Name)
			}

			mu.Lock()
			changed[filepath.ToSlash(rel)] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, fire)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("watcher error", "error", err)
		}
	}
}

func (p *Project) ignored(rel string) bool {
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return ignoredDirs[first] || first == "target"
}

func (p *Project) watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if abs != p.root && (ignoredDirs[d.Name()] || d.Name() == "target") {
			return filepath.SkipDir
		}
		return watcher.Add(abs)
	})
}
