package mock

import (
	"context"
	"io"
	"io/fs"

	"github.com/glimps-re/pescan/pkg/filesystem"
)

var _ filesystem.FileSystem = &FileSystemMock{}

type FileSystemMock struct {
	OpenMock  func(ctx context.Context, name string) (io.ReadCloser, error)
	StatMock  func(ctx context.Context, name string) (fs.FileInfo, error)
	WatchMock func(ctx context.Context, path string) (filesystem.Watcher, error)
}

func (fsm *FileSystemMock) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if fsm.OpenMock != nil {
		return fsm.OpenMock(ctx, name)
	}
	panic("FileSystemMock.Open() not implemented in current test")
}

func (fsm *FileSystemMock) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	if fsm.StatMock != nil {
		return fsm.StatMock(ctx, name)
	}
	panic("FileSystemMock.Stat() not implemented in current test")
}

func (fsm *FileSystemMock) Watch(ctx context.Context, path string) (filesystem.Watcher, error) {
	if fsm.WatchMock != nil {
		return fsm.WatchMock(ctx, path)
	}
	panic("FileSystemMock.Watch() not implemented in current test")
}

// WatcherMock is a Watcher fed by the test.
type WatcherMock struct {
	EventsChan chan filesystem.WatchEvent
	ErrorsChan chan error
	closed     bool
}

func NewWatcherMock() *WatcherMock {
	return &WatcherMock{
		EventsChan: make(chan filesystem.WatchEvent, 10),
		ErrorsChan: make(chan error, 10),
	}
}

func (w *WatcherMock) Events() <-chan filesystem.WatchEvent {
	return w.EventsChan
}

func (w *WatcherMock) Errors() <-chan error {
	return w.ErrorsChan
}

func (w *WatcherMock) Close() error {
	if !w.closed {
		w.closed = true
		close(w.EventsChan)
		close(w.ErrorsChan)
	}
	return nil
}
