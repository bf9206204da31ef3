package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/glimps-re/pescan/pkg/client"
	"github.com/glimps-re/pescan/pkg/datamodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

var sampleResult = datamodel.ScanResult{
	Filename:           "sample.exe",
	Label:              datamodel.LabelMalware,
	MalwareProbability: ptr(0.87),
	Features: datamodel.Features{
		{Name: "entropy", Value: 7.1},
		{Name: "size", Value: 2048},
	},
}

func resultScanner(result datamodel.ScanResult, err error) *MockScanner {
	return &MockScanner{
		ScanMock: func(ctx context.Context, file datamodel.FileRef) (datamodel.ScanResult, error) {
			return result, err
		},
	}
}

func sampleFile() *datamodel.FileRef {
	f := datamodel.FileFromBytes("sample.exe", make([]byte, 2048))
	return &f
}

func TestSession_Scan(t *testing.T) {
	tests := []struct {
		name      string
		result    datamodel.ScanResult
		err       error
		timeout   time.Duration
		maxSize   int64
		wantPhase Phase
		wantError string
	}{
		{
			name:      "malware",
			result:    sampleResult,
			wantPhase: Succeeded,
		},
		{
			name:      "rejected with detail",
			err:       client.HTTPError{Code: 422, Status: "422 Unprocessable Entity", Detail: "unsupported file type"},
			wantPhase: Failed,
			wantError: "unsupported file type",
		},
		{
			name:      "rejected without detail",
			err:       client.HTTPError{Code: 500, Status: "500 Internal Server Error"},
			wantPhase: Failed,
			wantError: MessageScanFailed,
		},
		{
			name:      "malformed",
			err:       fmt.Errorf("%w: missing label", client.ErrMalformedResponse),
			wantPhase: Failed,
			wantError: MessageScanFailed,
		},
		{
			name:      "transport",
			err:       &url.Error{Op: "Post", URL: "http://localhost:8000/api/scan", Err: errors.New("connection refused")},
			wantPhase: Failed,
			wantError: "Unexpected error: connection refused",
		},
		{
			name:      "other failure",
			err:       errors.New("boom"),
			wantPhase: Failed,
			wantError: "Unexpected error: boom",
		},
		{
			name:      "timeout",
			err:       fmt.Errorf("post: %w", context.DeadlineExceeded),
			timeout:   time.Minute,
			wantPhase: Failed,
			wantError: "Scan timed out after 1m0s",
		},
		{
			name:      "too big",
			result:    sampleResult,
			maxSize:   1024,
			wantPhase: Failed,
			wantError: "file is too big to be analyzed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{Scanner: resultScanner(tt.result, tt.err), Timeout: tt.timeout, MaxFileSize: tt.maxSize})
			s.Select(sampleFile())
			got := s.Scan(context.Background())
			assert.Equal(t, tt.wantPhase, got.Phase)
			assert.Equal(t, tt.wantError, got.Error)
			if tt.wantPhase == Succeeded {
				require.NotNil(t, got.Result)
				assert.Equal(t, tt.result, *got.Result)
			} else {
				assert.Nil(t, got.Result)
			}
			assert.True(t, s.CanScan())
		})
	}
}

func TestSession_sampleScenario(t *testing.T) {
	s := New(Config{Scanner: resultScanner(sampleResult, nil)})
	s.Select(sampleFile())

	state := s.Scan(context.Background())
	require.Equal(t, Succeeded, state.Phase)

	score, ok := s.ScorePercent()
	assert.True(t, ok)
	assert.Equal(t, 87, score)
	assert.True(t, state.Result.IsMalware())
	assert.Equal(t, []Feature{{Name: "entropy", Value: 7.1}, {Name: "size", Value: 2048}}, s.VisibleFeatures())

	s.SetQuery("ENT")
	assert.Equal(t, []Feature{{Name: "entropy", Value: 7.1}}, s.VisibleFeatures())
	assert.Equal(t, "7.1000", FormatValue(s.VisibleFeatures()[0].Value))

	s.SetQuery("")
	assert.Len(t, s.VisibleFeatures(), 2)
}

func TestSession_nullProbability(t *testing.T) {
	result := datamodel.ScanResult{Filename: "a.dll", Label: datamodel.LabelSafe, Features: datamodel.Features{}}
	s := New(Config{Scanner: resultScanner(result, nil)})
	s.Select(sampleFile())
	require.Equal(t, Succeeded, s.Scan(context.Background()).Phase)

	_, ok := s.ScorePercent()
	assert.False(t, ok)
	assert.Empty(t, s.VisibleFeatures())
}

func TestSession_noFile(t *testing.T) {
	s := New(Config{Scanner: &MockScanner{}})
	assert.False(t, s.CanScan())
	done, started := s.RunScan(context.Background())
	assert.False(t, started)
	assert.Nil(t, done)
	assert.Equal(t, Idle, s.State().Phase)
}

func TestSession_singleFlight(t *testing.T) {
	release := make(chan struct{})
	calls := 0
	var mu sync.Mutex
	s := New(Config{Scanner: &MockScanner{
		ScanMock: func(ctx context.Context, file datamodel.FileRef) (datamodel.ScanResult, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			<-release
			return sampleResult, nil
		},
	}})
	s.Select(sampleFile())

	done, started := s.RunScan(context.Background())
	require.True(t, started)
	assert.Equal(t, InFlight, s.State().Phase)
	assert.False(t, s.CanScan())

	_, again := s.RunScan(context.Background())
	assert.False(t, again)

	close(release)
	<-done
	assert.Equal(t, Succeeded, s.State().Phase)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	// a new attempt replaces the previous outcome
	state := s.Scan(context.Background())
	assert.Equal(t, Succeeded, state.Phase)
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestSession_selectResets(t *testing.T) {
	s := New(Config{Scanner: resultScanner(sampleResult, nil)})
	s.Select(sampleFile())
	require.Equal(t, Succeeded, s.Scan(context.Background()).Phase)

	other := datamodel.FileFromBytes("other.exe", []byte("MZ"))
	s.Select(&other)
	assert.Equal(t, Idle, s.State().Phase)
	_, ok := s.Result()
	assert.False(t, ok)
	assert.Empty(t, s.VisibleFeatures())
	require.NotNil(t, s.File())
	assert.Equal(t, "other.exe", s.File().Name)

	s.Select(nil)
	assert.Nil(t, s.File())
	assert.False(t, s.CanScan())
}

func TestSession_selectDuringScan(t *testing.T) {
	started := make(chan struct{})
	s := New(Config{Scanner: &MockScanner{
		ScanMock: func(ctx context.Context, file datamodel.FileRef) (datamodel.ScanResult, error) {
			close(started)
			<-ctx.Done()
			return datamodel.ScanResult{}, ctx.Err()
		},
	}})
	s.Select(sampleFile())
	done, ok := s.RunScan(context.Background())
	require.True(t, ok)
	<-started

	other := datamodel.FileFromBytes("other.exe", []byte("MZ"))
	s.Select(&other)
	assert.Equal(t, Idle, s.State().Phase)

	<-done
	// the abandoned attempt leaves no trace
	assert.Equal(t, Idle, s.State().Phase)
	assert.Empty(t, s.State().Error)
	assert.True(t, s.CanScan())
}

func TestSession_Drop(t *testing.T) {
	s := New(Config{Scanner: &MockScanner{}})
	s.Drop(nil)
	assert.Nil(t, s.File())

	s.Drop([]datamodel.FileRef{
		datamodel.FileFromBytes("first.exe", []byte("1")),
		datamodel.FileFromBytes("second.exe", []byte("22")),
	})
	require.NotNil(t, s.File())
	assert.Equal(t, "first.exe", s.File().Name)

	// an empty drop keeps the selection
	s.Drop([]datamodel.FileRef{})
	assert.Equal(t, "first.exe", s.File().Name)
}

func TestSession_RegisterOnChange(t *testing.T) {
	s := New(Config{Scanner: resultScanner(sampleResult, nil)})
	var phases []Phase
	var canScan []bool
	s.RegisterOnChange(func(snapshot Snapshot) {
		phases = append(phases, snapshot.State.Phase)
		canScan = append(canScan, snapshot.CanScan)
	})
	s.Select(sampleFile())
	s.Scan(context.Background())
	s.SetQuery("size")
	s.SetQuery("size")

	assert.Equal(t, []Phase{Idle, InFlight, Succeeded, Succeeded}, phases)
	assert.Equal(t, []bool{true, false, true, true}, canScan)
}

func TestSession_Close(t *testing.T) {
	s := New(Config{Scanner: &MockScanner{
		ScanMock: func(ctx context.Context, file datamodel.FileRef) (datamodel.ScanResult, error) {
			<-ctx.Done()
			return datamodel.ScanResult{}, ctx.Err()
		},
	}})
	s.Select(sampleFile())
	_, ok := s.RunScan(context.Background())
	require.True(t, ok)
	s.Close()
	assert.True(t, s.CanScan())
	assert.Equal(t, Idle, s.State().Phase)
}

func TestFilterFeatures(t *testing.T) {
	features := datamodel.Features{
		{Name: "Entropy", Value: 7.1},
		{Name: "SizeOfCode", Value: 4096},
		{Name: "section_entropy_max", Value: 6.5},
	}
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty", query: "", want: []string{"Entropy", "SizeOfCode", "section_entropy_max"}},
		{name: "blank", query: "   ", want: []string{"Entropy", "SizeOfCode", "section_entropy_max"}},
		{name: "case insensitive", query: "ENTROPY", want: []string{"Entropy", "section_entropy_max"}},
		{name: "trimmed", query: " code ", want: []string{"SizeOfCode"}},
		{name: "no match", query: "imports", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, f := range FilterFeatures(features, tt.query) {
				got = append(got, f.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "7.1000", FormatValue(7.1))
	assert.Equal(t, "2048.0000", FormatValue(2048))
	assert.Equal(t, "0.1235", FormatValue(0.12346))
	assert.Equal(t, "-1.0000", FormatValue(-1))
}
