package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/glimps-re/pescan/pkg/config"
)

func TestSelector_Acquire(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "sample.exe")
	if err := os.WriteFile(local, []byte("MZ local"), 0o600); err != nil {
		t.Fatalf("could not write test file, error: %v", err)
	}

	s3Client := &S3ClientMock{
		HeadObjectMock: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			if aws.ToString(params.Key) == "sample.dll" {
				return &s3.HeadObjectOutput{ContentLength: aws.Int64(9), LastModified: aws.Time(time.Now())}, nil
			}
			return nil, errNotFound
		},
		GetObjectMock: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("MZ remote"))}, nil
		},
		ListObjectsV2Mock: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			if aws.ToString(params.Prefix) == "dir" {
				return &s3.ListObjectsV2Output{Contents: []types.Object{{Key: aws.String("dir/a")}}}, nil
			}
			return &s3.ListObjectsV2Output{}, nil
		},
	}
	selector := NewSelectorWith(NewLocalFileSystem(), NewS3FileSystemWithClient(s3Client, 0))

	tests := []struct {
		name        string
		location    string
		wantName    string
		wantSize    int64
		wantContent string
		wantErr     error
	}{
		{name: "local", location: local, wantName: "sample.exe", wantSize: 8, wantContent: "MZ local"},
		{name: "s3", location: "s3://bucket/sample.dll", wantName: "sample.dll", wantSize: 9, wantContent: "MZ remote"},
		{name: "local directory", location: dir, wantErr: ErrIsDirectory},
		{name: "s3 prefix", location: "s3://bucket/dir", wantErr: ErrIsDirectory},
		{name: "local missing", location: filepath.Join(dir, "ghost"), wantErr: fs.ErrNotExist},
		{name: "s3 missing", location: "s3://bucket/ghost", wantErr: fs.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := selector.Acquire(context.Background(), tt.location)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Selector.Acquire() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Selector.Acquire() error = %v", err)
			}
			if file.Name != tt.wantName || file.SizeBytes != tt.wantSize || file.Location != tt.location {
				t.Errorf("Selector.Acquire() = %+v", file)
			}
			r, err := file.Open(context.Background())
			if err != nil {
				t.Fatalf("FileRef.Open() error = %v", err)
			}
			defer r.Close()
			content, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("could not read file, error: %v", err)
			}
			if string(content) != tt.wantContent {
				t.Errorf("FileRef.Open() content = %q, want %q", content, tt.wantContent)
			}
		})
	}
}

func TestSelector_Resolve_lazyS3(t *testing.T) {
	calls := 0
	selector := NewSelector(config.S3Config{Endpoint: "http://minio:9000"})
	selector.newS3 = func(ctx context.Context, cfg config.S3Config) (FileSystem, error) {
		calls++
		if cfg.Endpoint != "http://minio:9000" {
			t.Errorf("newS3() endpoint = %s", cfg.Endpoint)
		}
		return NewS3FileSystemWithClient(&S3ClientMock{}, 0), nil
	}

	fsys, name, err := selector.Resolve(context.Background(), "/tmp/sample.exe")
	if err != nil || fsys != selector.local || name != "/tmp/sample.exe" {
		t.Errorf("Selector.Resolve() = (%v, %s, %v)", fsys, name, err)
	}
	if calls != 0 {
		t.Errorf("S3 client created for a local location")
	}

	for i := 0; i < 2; i++ {
		fsys, name, err = selector.Resolve(context.Background(), "s3://bucket/key")
		if err != nil {
			t.Fatalf("Selector.Resolve() error = %v", err)
		}
		if name != "bucket/key" {
			t.Errorf("Selector.Resolve() name = %s", name)
		}
		if selector.Location(fsys, "bucket/new") != "s3://bucket/new" {
			t.Errorf("Selector.Location() = %s", selector.Location(fsys, "bucket/new"))
		}
	}
	if calls != 1 {
		t.Errorf("S3 client created %d times, want 1", calls)
	}

	failing := NewSelectorWith(NewLocalFileSystem(), nil)
	if _, _, err := failing.Resolve(context.Background(), "s3://bucket/key"); err == nil {
		t.Error("Selector.Resolve() without S3 support, want error")
	}
}
