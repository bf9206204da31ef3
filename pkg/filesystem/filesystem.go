// Package filesystem gives read access to the places a file can be selected
// from: the local disk and S3 buckets.
package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

const logErrorKey = "error"

var ErrIsDirectory = errors.New("is a directory")

// WatchEventType represents the type of filesystem event
type WatchEventType int

const (
	WatchEventCreate WatchEventType = iota
	WatchEventWrite
)

func (t WatchEventType) String() string {
	switch t {
	case WatchEventCreate:
		return "CREATE"
	case WatchEventWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// WatchEvent is a file appearing or changing under a watched location.
// Path can be handed back to the FileSystem that produced it.
type WatchEvent struct {
	Path     string
	Type     WatchEventType
	Time     time.Time
	FileInfo fs.FileInfo
}

// Watcher represents an active watch session
type Watcher interface {
	Events() <-chan WatchEvent
	Errors() <-chan error
	// Close stops watching and releases resources
	Close() error
}

// FileSystem is a read only source of files.
type FileSystem interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Stat(ctx context.Context, name string) (fs.FileInfo, error)
	// Watch reports files created or written under path.
	Watch(ctx context.Context, path string) (Watcher, error)
}
