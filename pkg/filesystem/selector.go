package filesystem

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/glimps-re/pescan/pkg/config"
	"github.com/glimps-re/pescan/pkg/datamodel"
)

// Selector turns user supplied locations (local path or s3://bucket/key)
// into FileRefs. The S3 client is only created when an s3:// location is used.
type Selector struct {
	local    FileSystem
	s3Config config.S3Config
	newS3    func(ctx context.Context, cfg config.S3Config) (FileSystem, error)

	mu sync.Mutex
	s3 FileSystem
}

func NewSelector(s3Config config.S3Config) *Selector {
	return &Selector{
		local:    NewLocalFileSystem(),
		s3Config: s3Config,
		newS3: func(ctx context.Context, cfg config.S3Config) (FileSystem, error) {
			return NewS3FileSystem(ctx, cfg)
		},
	}
}

// NewSelectorWith uses the given file systems, s3 may be nil when s3:// locations are not supported.
func NewSelectorWith(local, s3 FileSystem) *Selector {
	return &Selector{
		local: local,
		s3:    s3,
		newS3: func(context.Context, config.S3Config) (FileSystem, error) {
			return nil, fmt.Errorf("s3 locations are not supported")
		},
	}
}

// Resolve returns the file system serving location and the name to use with it.
func (s *Selector) Resolve(ctx context.Context, location string) (fsys FileSystem, name string, err error) {
	name, isS3 := ParseS3URI(location)
	if !isS3 {
		fsys, name = s.local, location
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3 == nil {
		s.s3, err = s.newS3(ctx, s.s3Config)
		if err != nil {
			s.s3 = nil
			return
		}
		logger.Debug("S3 client created", slog.String("endpoint", s.s3Config.Endpoint))
	}
	fsys = s.s3
	return
}

// Acquire checks that location is a readable file and returns a FileRef
// opening it lazily.
func (s *Selector) Acquire(ctx context.Context, location string) (file datamodel.FileRef, err error) {
	fsys, name, err := s.Resolve(ctx, location)
	if err != nil {
		return
	}
	info, err := fsys.Stat(ctx, name)
	if err != nil {
		err = fmt.Errorf("could not select %s: %w", location, err)
		return
	}
	if info.IsDir() {
		err = fmt.Errorf("could not select %s: %w", location, &fs.PathError{Op: "select", Path: location, Err: ErrIsDirectory})
		return
	}
	file = datamodel.NewFileRef(info.Name(), info.Size(), location, func(ctx context.Context) (io.ReadCloser, error) {
		return fsys.Open(ctx, name)
	})
	return
}

// Location builds the location of a watched event path served by fsys.
func (s *Selector) Location(fsys FileSystem, eventPath string) string {
	if fsys != s.local {
		return S3Scheme + eventPath
	}
	return eventPath
}
