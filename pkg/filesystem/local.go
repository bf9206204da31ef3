package filesystem

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LocalFileSystem reads files from the local disk.
type LocalFileSystem struct{}

func NewLocalFileSystem() *LocalFileSystem {
	return &LocalFileSystem{}
}

func (l *LocalFileSystem) Open(ctx context.Context, name string) (reader io.ReadCloser, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	file, err := os.Open(name) //nolint:gosec // file indicated by user, for submitting only
	if err != nil {
		return
	}
	reader = file
	return
}

func (l *LocalFileSystem) Stat(ctx context.Context, name string) (info fs.FileInfo, err error) {
	info, err = os.Stat(name)
	return
}

// Watch reports regular files created or written directly in dir.
func (l *LocalFileSystem) Watch(ctx context.Context, dir string) (Watcher, error) {
	return newLocalWatcher(ctx, dir)
}

type localWatcher struct {
	watcher *fsnotify.Watcher
	events  chan WatchEvent
	errors  chan error
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func newLocalWatcher(ctx context.Context, dir string) (w *localWatcher, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return
	}
	if !info.IsDir() {
		err = &fs.PathError{Op: "watch", Path: dir, Err: fs.ErrInvalid}
		return
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	if err = fsWatcher.Add(dir); err != nil {
		if e := fsWatcher.Close(); e != nil {
			logger.Error("could not close fsnotify watcher", slog.String(logErrorKey, e.Error()))
		}
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w = &localWatcher{
		watcher: fsWatcher,
		events:  make(chan WatchEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		ctx:     watchCtx,
		cancel:  cancel,
	}
	go w.watch()
	logger.Debug("watching directory", slog.String("path", dir))
	return
}

func (w *localWatcher) watch() {
	defer close(w.done)
	defer close(w.events)
	defer close(w.errors)

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.ctx.Done():
				return
			}
		}
	}
}

func (w *localWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	var eventType WatchEventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = WatchEventCreate
	case event.Has(fsnotify.Write):
		eventType = WatchEventWrite
	default:
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// already gone
		logger.Debug("skip event", slog.String("path", event.Name), slog.String(logErrorKey, err.Error()))
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	select {
	case w.events <- WatchEvent{Path: event.Name, Type: eventType, Time: time.Now(), FileInfo: info}:
	case <-w.ctx.Done():
	}
}

func (w *localWatcher) Events() <-chan WatchEvent {
	return w.events
}

func (w *localWatcher) Errors() <-chan error {
	return w.errors
}

func (w *localWatcher) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		w.closeErr = w.watcher.Close()
		<-w.done
	})
	return w.closeErr
}
