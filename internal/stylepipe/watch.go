package stylepipe

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/romdo/go-debounce"
)

// Rebuild debounce: coalesce bursts of saves within 100ms, but rebuild at
// least once per second while changes keep arriving
const (
	watchDebounceWait = 100 * time.Millisecond
	watchMaxWait      = time.Second
)

// ignoredDirs are never watched
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}

// BuildFunc receives the outcome of every run started by Watch
type BuildFunc func(*Result, error)

// Watch runs the pipeline once, then again whenever an entry, a partial, the
// manifest or an installed component changes. Fatal run errors are passed to
// onBuild and watching continues. Watch returns when ctx is canceled.
func (b *Builder) Watch(ctx context.Context, onBuild BuildFunc) error {
	if onBuild == nil {
		onBuild = func(*Result, error) {}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	dirs := b.watchDirs()
	for _, dir := range dirs {
		b.addRecursive(w, dir)
	}
	// The manifest directory is usually the project root: watch it flat
	if err := w.Add(filepath.Dir(b.Manifest().ManifestPath())); err != nil {
		b.log.Warn("failed to watch manifest directory", "err", err)
	}
	b.log.Info("watching for changes", "dirs", len(w.WatchList()), "preprocessor", b.cfg.Preprocessor.Name())

	trigger := make(chan struct{}, 1)
	rebuild, cancelRebuild := debounce.NewWithMaxWait(watchDebounceWait, watchMaxWait, func() {
		select {
		case trigger <- struct{}{}:
		default:
			// Rebuild already pending
		}
	})
	defer cancelRebuild()

	go b.watchEvents(ctx, w, rebuild)

	onBuild(b.Run(ctx))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
			res, err := b.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			onBuild(res, err)
		}
	}
}

func (b *Builder) watchEvents(ctx context.Context, w *fsnotify.Watcher, rebuild func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					b.addRecursive(w, ev.Name)
				}
			}
			if b.relevant(ev) {
				b.log.Debug("change detected", "file", ev.Name, "op", ev.Op.String())
				rebuild()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			b.log.Error("watcher error", "err", err)
		}
	}
}

// watchDirs returns the glob base of every source pattern and the components
// directory
func (b *Builder) watchDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	for _, pattern := range b.cfg.Sources {
		add(b.resolvePath(globBase(pattern)))
	}
	if comp, err := b.Manifest().Components(); err == nil {
		add(comp)
	}
	return dirs
}

// globBase returns the leading directory of pattern that contains no glob syntax
func globBase(pattern string) string {
	pattern = filepath.ToSlash(pattern)
	if !hasMeta(pattern) {
		return filepath.Dir(filepath.FromSlash(pattern))
	}
	var parts []string
	for _, part := range strings.Split(pattern, "/") {
		if hasMeta(part) {
			break
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return "."
	}
	return filepath.FromSlash(strings.Join(parts, "/"))
}

// addRecursive watches dir and its subdirectories, skipping ignored,
// gitignored and destination directories
func (b *Builder) addRecursive(w *fsnotify.Watcher, dir string) {
	dest := b.resolvePath(b.cfg.Dest)
	if within(dest, dir) {
		return
	}
	gi := loadGitIgnore(b.cfg.Root)
	// Components are usually gitignored but still watched
	comp, _ := b.Manifest().Components()

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		if path == dest {
			return filepath.SkipDir
		}
		if gi != nil && path != dir && within(b.cfg.Root, path) && (comp == "" || !within(comp, path)) {
			if rel, err := filepath.Rel(b.cfg.Root, path); err == nil && gi.MatchesPath(filepath.ToSlash(rel)+"/") {
				return filepath.SkipDir
			}
		}
		if err := w.Add(path); err != nil {
			b.log.Warn("failed to watch directory", "path", path, "err", err)
		}
		return nil
	})
}

// relevant reports whether a file event should trigger a rebuild
func (b *Builder) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}

	if within(b.resolvePath(b.cfg.Dest), ev.Name) {
		return false
	}

	name := filepath.Base(ev.Name)
	if ev.Name == b.Manifest().ManifestPath() || name == ".bowerrc" || name == ".bower.json" {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), "."+b.cfg.Preprocessor.Extension())
}

// within reports whether path is dir or below it
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
