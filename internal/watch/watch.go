// Package watch turns filesystem activity in a repository into debounced
// change notifications.
package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before a
// notification is emitted.
const DefaultDebounce = 600 * time.Millisecond

// gitDirWatched lists the parts of .git whose changes affect status output.
var gitDirWatched = []string{"refs", "logs"}

// Watcher watches a working tree and its git directory.
type Watcher struct {
	Root     string
	Debounce time.Duration

	mu      sync.Mutex
	started bool
	watcher *fsnotify.Watcher
	paths   map[string]struct{}
	events  chan struct{}
	done    chan struct{}
	stopped chan struct{}
	logf    func(string, ...any)
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, logf func(string, ...any)) *Watcher {
	return &Watcher{
		Root:     filepath.Clean(root),
		Debounce: DefaultDebounce,
		events:   make(chan struct{}, 1),
		logf:     logf,
	}
}

// Events delivers one value per debounced burst of changes. Bursts arriving
// while a value is pending are coalesced.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Start registers the tree and starts the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	info, err := os.Stat(w.Root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("watch: root is not a directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	w.paths = make(map[string]struct{})
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})
	w.started = true

	w.addTreeLocked(w.Root)
	w.addGitDirLocked()

	go w.run(watcher, w.done, w.stopped)
	return nil
}

// Stop ends the event loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.done)
	stopped := w.stopped
	_ = w.watcher.Close()
	w.mu.Unlock()
	<-stopped
}

// Watched reports the number of registered directories.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

// Relevant reports whether an event on path can change repository status.
// Inside .git only the index, HEAD and ref changes matter.
func (w *Watcher) Relevant(path string) bool {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if parts[0] != ".git" {
		return true
	}
	if len(parts) == 1 {
		return true
	}
	switch parts[1] {
	case "index", "HEAD", "FETCH_HEAD", "ORIG_HEAD", "MERGE_HEAD", "packed-refs":
		return true
	case "refs", "logs":
		return !strings.HasSuffix(path, ".lock")
	}
	return false
}

func (w *Watcher) run(watcher *fsnotify.Watcher, done, stopped chan struct{}) {
	defer close(stopped)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				w.maybeWatchNewDir(event.Name)
			}
			if !w.Relevant(event.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.signal(done)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.debugf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) signal(done chan struct{}) {
	select {
	case <-done:
		return
	default:
	}
	select {
	case w.events <- struct{}{}:
	default:
	}
}

func (w *Watcher) maybeWatchNewDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	gitDir := filepath.Join(w.Root, ".git")
	switch {
	case path == gitDir:
		w.addGitDirLocked()
	case strings.HasPrefix(path, gitDir+string(filepath.Separator)):
		if w.Relevant(path) {
			w.addTreeLocked(path)
		}
	default:
		w.addTreeLocked(path)
	}
}

func (w *Watcher) addGitDirLocked() {
	gitDir := filepath.Join(w.Root, ".git")
	w.addDirLocked(gitDir)
	for _, sub := range gitDirWatched {
		w.addTreeLocked(filepath.Join(gitDir, sub))
	}
}

// addTreeLocked registers root and its subdirectories. Directories named
// .git are skipped unless root itself lies inside the git directory.
func (w *Watcher) addTreeLocked(root string) {
	inGitDir := strings.HasPrefix(root, filepath.Join(w.Root, ".git")+string(filepath.Separator))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if !inGitDir && d.Name() == ".git" {
			return filepath.SkipDir
		}
		w.addDirLocked(path)
		return nil
	})
}

func (w *Watcher) addDirLocked(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if _, ok := w.paths[path]; ok {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.debugf("watcher add failed for %s: %v", path, err)
		return
	}
	w.paths[path] = struct{}{}
}

func (w *Watcher) debugf(format string, args ...any) {
	if w.logf == nil {
		return
	}
	w.logf(format, args...)
}
