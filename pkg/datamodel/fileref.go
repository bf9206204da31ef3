package datamodel

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// Opener gives access to the raw bytes of a selected file.
type Opener func(ctx context.Context) (io.ReadCloser, error)

var (
	ErrNoContent  = errors.New("file has no content source")
	ErrFileTooBig = errors.New("file is too big to be analyzed")
)

// FileRef is a handle to a user-selected binary blob awaiting submission.
type FileRef struct {
	Name      string
	SizeBytes int64
	// Location is where the file was selected from (local path or s3 URI).
	Location string

	open Opener
}

func NewFileRef(name string, size int64, location string, open Opener) FileRef {
	return FileRef{
		Name:      name,
		SizeBytes: max(size, 0),
		Location:  location,
		open:      open,
	}
}

// FileFromBytes builds a FileRef over an in-memory payload.
func FileFromBytes(name string, data []byte) FileRef {
	return NewFileRef(name, int64(len(data)), name, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

func (f FileRef) Open(ctx context.Context) (io.ReadCloser, error) {
	if f.open == nil {
		return nil, ErrNoContent
	}
	return f.open(ctx)
}
