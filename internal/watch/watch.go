// Package watch reports files saved inside a working tree.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// skipDirs are never watched.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// SaveWatcher emits the path of every file written or created below root,
// except paths the repository's ignore rules exclude.
type SaveWatcher struct {
	root    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	events  chan string
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	// only touched by New and the event loop
	matcher gitignore.Matcher
}

// New starts watching root and all its subdirectories.
func New(root string, logger *slog.Logger) (*SaveWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	sw := &SaveWatcher{
		root:    root,
		watcher: w,
		logger:  logger,
		events:  make(chan string, 64),
		done:    make(chan struct{}),
	}
	sw.loadIgnores()
	if err := sw.addTree(root); err != nil {
		_ = w.Close()
		return nil, err
	}

	sw.wg.Add(1)
	go sw.loop()
	return sw, nil
}

// Events is closed by Close.
func (sw *SaveWatcher) Events() <-chan string {
	return sw.events
}

func (sw *SaveWatcher) Close() error {
	var err error
	sw.once.Do(func() {
		close(sw.done)
		err = sw.watcher.Close()
		sw.wg.Wait()
		close(sw.events)
	})
	return err
}

// loadIgnores reads the ignore rules of the working tree.
func (sw *SaveWatcher) loadIgnores() {
	patterns, err := gitignore.ReadPatterns(osfs.New(sw.root), nil)
	if err != nil {
		sw.logger.Debug("read ignore rules failed", "root", sw.root, "err", err)
	}
	sw.matcher = gitignore.NewMatcher(patterns)
}

func (sw *SaveWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("walk %s: %w", dir, err)
			}
			sw.logger.Debug("skip unreadable path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && sw.ignored(path, true) {
			return filepath.SkipDir
		}
		if err := sw.watcher.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			sw.logger.Debug("watch directory failed", "path", path, "err", err)
		}
		return nil
	})
}

func (sw *SaveWatcher) loop() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handle(ev)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				sw.logger.Warn("file watcher error", "err", err)
			}
		}
	}
}

func (sw *SaveWatcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(ev.Name)
	isDir := err == nil && info.IsDir()
	if sw.ignored(ev.Name, isDir) {
		return
	}
	if filepath.Base(ev.Name) == ".gitignore" {
		sw.loadIgnores()
	}

	if isDir {
		if ev.Has(fsnotify.Create) {
			if err := sw.addTree(ev.Name); err != nil {
				sw.logger.Debug("watch new directory failed", "path", ev.Name, "err", err)
			}
		}
		return
	}

	select {
	case sw.events <- ev.Name:
	case <-sw.done:
	}
}

func (sw *SaveWatcher) ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(sw.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, part := range parts {
		if skipDirs[part] {
			return true
		}
	}
	return sw.matcher.Match(parts, isDir)
}
