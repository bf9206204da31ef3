package session

import (
	"github.com/glimps-re/pescan/pkg/datamodel"
)

// Result returns the last successful result.
func (s *Session) Result() (result datamodel.ScanResult, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked()
}

func (s *Session) resultLocked() (result datamodel.ScanResult, ok bool) {
	if s.state.Phase != Succeeded || s.state.Result == nil {
		return
	}
	return *s.state.Result, true
}

// ScorePercent returns the malware score of the last result. ok is false when
// there is no result or the service gave no probability.
func (s *Session) ScorePercent() (percent int, ok bool) {
	result, found := s.Result()
	if !found {
		return
	}
	return result.ScorePercent()
}

func (s *Session) SetQuery(q string) {
	s.update(func() bool {
		if s.query == q {
			return false
		}
		s.query = q
		return true
	})
}

func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// VisibleFeatures returns the features of the last result matching the query.
func (s *Session) VisibleFeatures() []Feature {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.resultLocked()
	if !ok {
		return []Feature{}
	}
	return FilterFeatures(result.Features, s.query)
}

// Snapshot is a consistent copy of the session for views.
type Snapshot struct {
	File     *datamodel.FileRef
	State    State
	Query    string
	CanScan  bool
	Features []Feature
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		State:    s.state,
		Query:    s.query,
		CanScan:  s.canScanLocked(),
		Features: []Feature{},
	}
	if s.file != nil {
		f := *s.file
		snapshot.File = &f
	}
	if result, ok := s.resultLocked(); ok {
		snapshot.Features = FilterFeatures(result.Features, s.query)
	}
	return snapshot
}

// Result returns the result held by the snapshot.
func (s Snapshot) Result() (result datamodel.ScanResult, ok bool) {
	if s.State.Phase != Succeeded || s.State.Result == nil {
		return
	}
	return *s.State.Result, true
}
