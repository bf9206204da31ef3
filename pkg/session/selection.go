package session

import (
	"log/slog"

	"github.com/glimps-re/pescan/pkg/datamodel"
)

// Select replaces the selected file (nil clears it). Any previous outcome is
// discarded and the session goes back to Idle; an attempt still running is
// abandoned and its outcome ignored.
func (s *Session) Select(file *datamodel.FileRef) {
	s.update(func() bool {
		if file == nil {
			s.file = nil
		} else {
			f := *file
			s.file = &f
		}
		s.generation++
		if s.task != nil {
			s.task.cancel()
		}
		s.state = idleState()
		return true
	})
	if file != nil {
		logger.Debug("file selected", slog.String("file", file.Location), slog.Int64("size", file.SizeBytes))
	}
}

// Drop selects the first dropped file, the others are ignored.
func (s *Session) Drop(files []datamodel.FileRef) {
	if len(files) == 0 {
		return
	}
	if len(files) > 1 {
		logger.Debug("only the first dropped file is selected", slog.Int("ignored", len(files)-1))
	}
	s.Select(&files[0])
}

// File returns a copy of the selected file, nil when none.
func (s *Session) File() *datamodel.FileRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	f := *s.file
	return &f
}
