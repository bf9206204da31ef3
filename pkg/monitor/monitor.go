// Package monitor turns a watched location into a drop zone: files landing
// there are handed over in batches once they stopped changing.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/glimps-re/pescan/pkg/filesystem"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

const logErrorKey = "error"

// DropFunc receives the paths of one batch, in the order they first appeared.
type DropFunc func(paths []string)

var (
	DropLoopPause = time.Millisecond * 100
	Since         = time.Since
)

type DropZone struct {
	fsys     filesystem.FileSystem
	path     string
	cb       DropFunc
	modDelay time.Duration

	watcher filesystem.Watcher
	wg      sync.WaitGroup
	stop    context.Context
	cancel  context.CancelFunc

	pendingLock sync.Mutex
	// last event time per path
	pending map[string]time.Time
	order   []string
}

func NewDropZone(fsys filesystem.FileSystem, path string, modDelay time.Duration, onDrop DropFunc) *DropZone {
	return &DropZone{
		fsys:     fsys,
		path:     path,
		cb:       onDrop,
		modDelay: modDelay,
		pending:  map[string]time.Time{},
	}
}

// Start begins watching. Call Close to stop.
func (d *DropZone) Start(ctx context.Context) (err error) {
	d.stop, d.cancel = context.WithCancel(ctx)
	d.watcher, err = d.fsys.Watch(d.stop, d.path)
	if err != nil {
		d.cancel()
		return
	}
	d.wg.Add(2)
	go d.work()
	go d.deliver()
	logger.Info("drop zone started", slog.String("path", d.path), slog.Duration("modification-delay", d.modDelay))
	return
}

func (d *DropZone) Close() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	if err := d.watcher.Close(); err != nil {
		logger.Warn("could not close watcher", slog.String(logErrorKey, err.Error()))
	}
	d.wg.Wait()
}

func (d *DropZone) work() {
	defer d.wg.Done()
	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-d.stop.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logger.Debug("new event", slog.String("path", event.Path), slog.String("type", event.Type.String()))
			d.pendingLock.Lock()
			if _, seen := d.pending[event.Path]; !seen {
				d.order = append(d.order, event.Path)
			}
			d.pending[event.Path] = event.Time
			d.pendingLock.Unlock()
		case err, ok := <-errs:
			if !ok {
				// no more errors, keep reading events
				errs = nil
				continue
			}
			logger.Error("watcher error", slog.String(logErrorKey, err.Error()))
		}
	}
}

func (d *DropZone) deliver() {
	defer d.wg.Done()
	ticker := time.NewTicker(DropLoopPause)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop.Done():
			return
		case <-ticker.C:
			if batch := d.quietBatch(); len(batch) > 0 {
				logger.Debug("files dropped", slog.Int("count", len(batch)))
				d.cb(batch)
			}
		}
	}
}

// quietBatch takes every pending path once none of them changed for modDelay.
func (d *DropZone) quietBatch() (batch []string) {
	d.pendingLock.Lock()
	defer d.pendingLock.Unlock()
	if len(d.order) == 0 {
		return
	}
	for _, path := range d.order {
		if Since(d.pending[path]) <= d.modDelay {
			return
		}
	}
	batch = d.order
	d.order = nil
	d.pending = map[string]time.Time{}
	return
}
