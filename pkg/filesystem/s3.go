package filesystem

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/logging"
	"github.com/glimps-re/pescan/pkg/config"
)

const S3Scheme = "s3://"

// S3Client abstracts the S3 client methods we use
type S3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3FileSystem reads objects from S3 or any compatible store (minio...).
// Names are "bucket/key".
type S3FileSystem struct {
	client       S3Client
	pollInterval time.Duration
}

// sdkLogger forwards SDK messages to the package logger at debug level.
type sdkLogger struct{}

func (sdkLogger) Logf(classification logging.Classification, format string, v ...any) {
	logger.Debug(fmt.Sprintf(format, v...), slog.String("source", "aws-sdk"), slog.String("classification", string(classification)))
}

func NewS3FileSystem(ctx context.Context, cfg config.S3Config) (s3fs *S3FileSystem, err error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithLogger(sdkLogger{}),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Insecure {
		httpClient := &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // configuration chosen by user
				},
			},
		}
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		err = fmt.Errorf("could not load S3 configuration: %w", err)
		return
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	s3fs = NewS3FileSystemWithClient(client, cfg.PollInterval)
	return
}

// NewS3FileSystemWithClient uses client as is. pollInterval paces Watch,
// it defaults to config.DefaultS3PollInterval.
func NewS3FileSystemWithClient(client S3Client, pollInterval time.Duration) *S3FileSystem {
	if pollInterval <= 0 {
		pollInterval = config.DefaultS3PollInterval
	}
	return &S3FileSystem{
		client:       client,
		pollInterval: pollInterval,
	}
}

// ParseS3URI returns the "bucket/key" name of an s3:// location.
func ParseS3URI(location string) (name string, ok bool) {
	return strings.CutPrefix(location, S3Scheme)
}

func splitPath(name string) (bucket, key string, err error) {
	name = strings.TrimPrefix(name, "/")
	bucket, key, _ = strings.Cut(name, "/")
	if bucket == "" {
		err = errors.New("invalid path: bucket name required")
	}
	return
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey", "NoSuchBucket":
		return true
	default:
		return false
	}
}

// s3FileInfo implements fs.FileInfo for S3 objects
type s3FileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (fi *s3FileInfo) Name() string       { return fi.name }
func (fi *s3FileInfo) Size() int64        { return fi.size }
func (fi *s3FileInfo) ModTime() time.Time { return fi.modTime }
func (fi *s3FileInfo) IsDir() bool        { return fi.isDir }
func (fi *s3FileInfo) Sys() any           { return nil }

func (fi *s3FileInfo) Mode() fs.FileMode {
	if fi.isDir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

// Open streams the object body. The caller closes it.
func (s *S3FileSystem) Open(ctx context.Context, name string) (reader io.ReadCloser, err error) {
	bucket, key, err := splitPath(name)
	if err != nil {
		return
	}
	if key == "" {
		err = &fs.PathError{Op: "open", Path: name, Err: ErrIsDirectory}
		return
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			err = &fs.PathError{Op: "open", Path: name, Err: errors.Join(fs.ErrNotExist, err)}
		}
		return
	}
	reader = result.Body
	return
}

// Stat describes an object. A bucket or a key prefix is reported as a directory.
func (s *S3FileSystem) Stat(ctx context.Context, name string) (info fs.FileInfo, err error) {
	bucket, key, err := splitPath(name)
	if err != nil {
		return
	}

	if key != "" && !strings.HasSuffix(key, "/") {
		result, headErr := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		switch {
		case headErr == nil:
			info = &s3FileInfo{
				name:    path.Base(key),
				size:    aws.ToInt64(result.ContentLength),
				modTime: aws.ToTime(result.LastModified),
			}
			return
		case !isNotFound(headErr):
			err = headErr
			return
		}
	}

	// not an object, look for a prefix
	listResult, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		if isNotFound(err) {
			err = &fs.PathError{Op: "stat", Path: name, Err: errors.Join(fs.ErrNotExist, err)}
		}
		return
	}
	if key == "" || len(listResult.Contents) > 0 || len(listResult.CommonPrefixes) > 0 {
		dirName := path.Base(strings.TrimSuffix(key, "/"))
		if key == "" {
			dirName = bucket
		}
		info = &s3FileInfo{name: dirName, isDir: true}
		return
	}

	err = &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	return
}

// Watch polls the bucket listing under the given prefix.
func (s *S3FileSystem) Watch(ctx context.Context, s3Path string) (Watcher, error) {
	return newS3Watcher(ctx, s, s3Path)
}

// s3ObjectInfo represents an S3 object for comparison
type s3ObjectInfo struct {
	key          string
	lastModified time.Time
	size         int64
}

// s3Watcher implements Watcher for S3 by comparing successive listings.
type s3Watcher struct {
	fs           *S3FileSystem
	bucket       string
	prefix       string
	events       chan WatchEvent
	errors       chan error
	done         chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	knownObjects map[string]s3ObjectInfo
}

func newS3Watcher(ctx context.Context, s3fs *S3FileSystem, s3Path string) (w *s3Watcher, err error) {
	bucket, prefix, err := splitPath(s3Path)
	if err != nil {
		return
	}
	if _, err = s3fs.Stat(ctx, s3Path); err != nil {
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w = &s3Watcher{
		fs:           s3fs,
		bucket:       bucket,
		prefix:       prefix,
		events:       make(chan WatchEvent, 100),
		errors:       make(chan error, 10),
		done:         make(chan struct{}),
		ctx:          watchCtx,
		cancel:       cancel,
		knownObjects: make(map[string]s3ObjectInfo),
	}

	// objects already there are not reported
	objects, err := w.listObjects()
	if err != nil {
		cancel()
		w = nil
		return
	}
	for _, o := range objects {
		w.knownObjects[o.key] = o
	}

	go w.poll()
	return
}

func (w *s3Watcher) listObjects() (objects []s3ObjectInfo, err error) {
	paginator := s3.NewListObjectsV2Paginator(w.fs.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(w.bucket),
		Prefix: aws.String(w.prefix),
	})

	for paginator.HasMorePages() {
		page, pageErr := paginator.NextPage(w.ctx)
		if pageErr != nil {
			err = pageErr
			return
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// directory markers
			if strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, s3ObjectInfo{
				key:          key,
				lastModified: aws.ToTime(obj.LastModified),
				size:         aws.ToInt64(obj.Size),
			})
		}
	}
	return
}

func (w *s3Watcher) poll() {
	defer close(w.done)
	defer close(w.events)
	defer close(w.errors)

	ticker := time.NewTicker(w.fs.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.checkForChanges(); err != nil {
				if w.ctx.Err() != nil {
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
}

func (w *s3Watcher) checkForChanges() error {
	objects, err := w.listObjects()
	if err != nil {
		return err
	}

	current := make(map[string]s3ObjectInfo, len(objects))
	for _, o := range objects {
		current[o.key] = o
		known, ok := w.knownObjects[o.key]
		switch {
		case !ok:
			w.sendEvent(WatchEventCreate, o)
		case o.lastModified.After(known.lastModified) || o.size != known.size:
			w.sendEvent(WatchEventWrite, o)
		}
	}
	w.knownObjects = current
	return nil
}

func (w *s3Watcher) sendEvent(eventType WatchEventType, obj s3ObjectInfo) {
	event := WatchEvent{
		Path: w.bucket + "/" + obj.key,
		Type: eventType,
		Time: time.Now(),
		FileInfo: &s3FileInfo{
			name:    path.Base(obj.key),
			size:    obj.size,
			modTime: obj.lastModified,
		},
	}
	select {
	case w.events <- event:
	case <-w.ctx.Done():
	}
}

func (w *s3Watcher) Events() <-chan WatchEvent {
	return w.events
}

func (w *s3Watcher) Errors() <-chan error {
	return w.errors
}

func (w *s3Watcher) Close() error {
	w.cancel()
	<-w.done
	return nil
}
