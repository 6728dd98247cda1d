package recordstore

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
)

// DefaultDebounce is the quiet period after the last file event before a reload.
const DefaultDebounce = 2 * time.Second

// Watcher reloads a Holder when record files change. MergedDir is watched
// recursively, WebDir flat.
type Watcher struct {
	holder   *Holder
	cfg      Config
	debounce time.Duration

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
	stopped chan struct{}

	// reloaded is signalled after every reload attempt. Used by tests.
	reloaded chan error
}

// NewWatcher creates a watcher for the holder's directories.
func NewWatcher(holder *Holder, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		holder:   holder,
		cfg:      holder.cfg,
		debounce: debounce,
	}
}

// Name implements server.Runnable.
func (w *Watcher) Name() string {
	return "record-watcher"
}

// Start begins watching. It returns once the watches are registered.
func (w *Watcher) Start(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if dirExists(w.cfg.MergedDir) {
		if err := addRecursive(fsw, w.cfg.MergedDir); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	if dirExists(w.cfg.WebDir) {
		if err := fsw.Add(w.cfg.WebDir); err != nil {
			_ = fsw.Close()
			return err
		}
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})
	go w.loop()

	logger.Infow("record watcher started",
		"merged_dir", w.cfg.MergedDir,
		"web_dir", w.cfg.WebDir,
		"debounce", w.debounce.String(),
	)
	return nil
}

// Stop stops watching and cancels a pending reload.
func (w *Watcher) Stop(_ context.Context) error {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return nil
	}
	close(w.done)
	if w.timer != nil {
		w.timer.Stop()
	}
	fsw := w.fsw
	w.fsw = nil
	stopped := w.stopped
	w.mu.Unlock()

	err := fsw.Close()
	<-stopped
	logger.Info("record watcher stopped")
	return err
}

func (w *Watcher) loop() {
	defer close(w.stopped)

	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warnw("record watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}

	// 新建的子目录需要单独加入监听
	if event.Has(fsnotify.Create) && isUnder(event.Name, w.cfg.MergedDir) && dirExists(event.Name) {
		if err := addRecursive(fsw, event.Name); err != nil {
			logger.Warnw("failed to watch new directory", "dir", event.Name, "error", err.Error())
		}
	}

	if !w.relevant(event.Name) {
		return
	}

	logger.Debugw("record file changed", "file", event.Name, "op", event.Op.String())
	w.schedule()
}

// relevant reports whether a change to name can alter the loaded records.
// Extension-less paths under MergedDir are treated as directories.
func (w *Watcher) relevant(name string) bool {
	if isUnder(name, w.cfg.MergedDir) {
		ext := filepath.Ext(name)
		return ext == handbookExt || ext == ""
	}
	return strings.HasSuffix(name, webSuffix)
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		err := w.holder.Reload()
		if w.reloaded != nil {
			w.reloaded <- err
		}
	})
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func isUnder(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
