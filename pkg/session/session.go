// Package session holds the state of one scan session: the selected file,
// the scan lifecycle, the last result and the feature query.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/glimps-re/pescan/pkg/client"
	"github.com/glimps-re/pescan/pkg/datamodel"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

const logErrorKey = "error"

const (
	MessageScanFailed = "Scan failed"
	MessageUnexpected = "Unexpected error"
	MessageTimeout    = "Scan timed out"
)

var ErrNoScanner = errors.New("no scanner configured")

// Scanner submits one file and returns its verdict.
type Scanner interface {
	Scan(ctx context.Context, file datamodel.FileRef) (datamodel.ScanResult, error)
}

var _ Scanner = &client.Client{}

type Config struct {
	Scanner Scanner
	// Timeout bounds each scan attempt, 0 waits forever.
	Timeout time.Duration
	// MaxFileSize rejects larger files before any request, 0 disables the check.
	MaxFileSize int64
}

// OnChange is called after every state change. It must not call methods
// that modify the session or register callbacks.
type OnChange = func(snapshot Snapshot)

type scanTask struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

type Session struct {
	config Config

	mu         sync.Mutex
	file       *datamodel.FileRef
	state      State
	query      string
	task       *scanTask
	generation uint64

	// notifyMu keeps notifications in transition order
	notifyMu    sync.Mutex
	onChangeCbs []OnChange
}

func New(config Config) *Session {
	return &Session{
		config: config,
		state:  idleState(),
	}
}

func (s *Session) RegisterOnChange(f OnChange) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.onChangeCbs = append(s.onChangeCbs, f)
}

// update applies fn under the session lock, then notifies observers when fn reports a change.
func (s *Session) update(fn func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn()
	var snapshot Snapshot
	if changed {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, cb := range s.onChangeCbs {
		cb(snapshot)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CanScan reports whether RunScan would start a new attempt.
func (s *Session) CanScan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canScanLocked()
}

func (s *Session) canScanLocked() bool {
	return s.file != nil && s.task == nil
}

// RunScan starts one scan attempt for the selected file. It does nothing and
// returns started=false when no file is selected or an attempt is still running.
// done is closed once the attempt reached its terminal state.
func (s *Session) RunScan(ctx context.Context) (done <-chan struct{}, started bool) {
	var (
		task    *scanTask
		file    datamodel.FileRef
		taskCtx context.Context
	)
	s.update(func() bool {
		if !s.canScanLocked() {
			return false
		}
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithCancel(ctx)
		task = &scanTask{
			generation: s.generation,
			cancel:     cancel,
			done:       make(chan struct{}),
		}
		s.task = task
		file = *s.file
		s.state = inFlightState()
		return true
	})
	if task == nil {
		logger.Debug("scan not started", slog.Bool("file-selected", s.File() != nil))
		return nil, false
	}
	go s.run(taskCtx, task, file)
	return task.done, true
}

// Scan runs one attempt and waits for its end.
func (s *Session) Scan(ctx context.Context) State {
	done, started := s.RunScan(ctx)
	if started {
		<-done
	}
	return s.State()
}

func (s *Session) run(ctx context.Context, task *scanTask, file datamodel.FileRef) {
	defer close(task.done)
	defer task.cancel()

	fileLogger := logger.With(slog.String("file", file.Location))
	start := time.Now()
	result, err := s.scan(ctx, file)

	s.update(func() bool {
		if s.task == task {
			s.task = nil
		}
		if task.generation != s.generation {
			fileLogger.Debug("discard stale scan outcome", slog.Duration("elapsed", time.Since(start)))
			// the scan control becomes available again
			return true
		}
		if err != nil {
			message := s.failureMessage(err)
			fileLogger.Warn("scan failed", slog.String(logErrorKey, err.Error()), slog.String("message", message))
			s.state = failedState(message)
			return true
		}
		fileLogger.Info("file scanned", slog.String("label", string(result.Label)), slog.Duration("elapsed", time.Since(start)))
		s.state = succeededState(result)
		return true
	})
}

func (s *Session) scan(ctx context.Context, file datamodel.FileRef) (result datamodel.ScanResult, err error) {
	if s.config.Scanner == nil {
		err = ErrNoScanner
		return
	}
	if s.config.MaxFileSize > 0 && file.SizeBytes > s.config.MaxFileSize {
		err = datamodel.ErrFileTooBig
		return
	}
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	return s.config.Scanner.Scan(ctx, file)
}

// failureMessage returns the user visible message for a failed attempt.
func (s *Session) failureMessage(err error) string {
	httpErr := new(client.HTTPError)
	urlErr := new(url.Error)
	switch {
	case errors.Is(err, datamodel.ErrFileTooBig):
		return datamodel.ErrFileTooBig.Error()
	case errors.Is(err, context.DeadlineExceeded):
		if s.config.Timeout > 0 {
			return fmt.Sprintf("%s after %s", MessageTimeout, s.config.Timeout)
		}
		return MessageTimeout
	case errors.As(err, httpErr):
		if httpErr.Detail != "" {
			return httpErr.Detail
		}
		return MessageScanFailed
	case errors.Is(err, client.ErrMalformedResponse):
		return MessageScanFailed
	case errors.As(err, &urlErr):
		return fmt.Sprintf("%s: %s", MessageUnexpected, urlErr.Err.Error())
	default:
		return fmt.Sprintf("%s: %s", MessageUnexpected, err.Error())
	}
}

// Close abandons any running attempt and waits for it to return.
func (s *Session) Close() {
	var task *scanTask
	s.update(func() bool {
		task = s.task
		if task == nil {
			return false
		}
		s.generation++
		task.cancel()
		s.state = idleState()
		return true
	})
	if task != nil {
		<-task.done
	}
}
