package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a File when it changes on disk and calls onReload after
// every successful load.
type Watcher struct {
	file     *File
	watcher  *fsnotify.Watcher
	onReload func()
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(file *File, onReload func()) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create fsnotify watcher")
	}

	return &Watcher{
		file:     file,
		watcher:  w,
		onReload: onReload,
		debounce: defaultDebounce,
	}, nil
}

// Start watches the parent directory rather than the file itself, because
// editors and `mv` replace the inode and a file watch would go stale.
// It returns once the watch is armed; events are handled until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	target := filepath.Clean(w.file.Path())
	dir := filepath.Dir(target)

	if err := w.watcher.Add(dir); err != nil {
		return pkgerrors.Wrapf(err, "failed to watch %s", dir)
	}

	logrus.WithFields(logrus.Fields{
		"file": target,
		"dir":  dir,
	}).Debug("watching config file")

	go func() {
		defer func() {
			_ = w.watcher.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				w.mu.Lock()
				if w.timer != nil {
					w.timer.Stop()
				}
				w.mu.Unlock()
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.schedule()
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logrus.Errorf("config watcher error: %v", err)
			}
		}
	}()

	return nil
}

// schedule debounces bursts of writes from a single save.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if err := w.file.Load(); err != nil {
		logrus.Errorf("failed to reload config: %v", err)
		return
	}

	logrus.WithFields(w.file.LogrusFields()).Info("config reloaded from disk")

	if w.onReload != nil {
		w.onReload()
	}
}
