package view

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/glimps-re/pescan/pkg/datamodel"
	"github.com/glimps-re/pescan/pkg/session"
	"github.com/google/go-cmp/cmp"
)

func init() {
	color.NoColor = true
}

func ptr[T any](v T) *T {
	return &v
}

func TestFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{size: 0, want: "0 KB"},
		{size: 511, want: "0 KB"},
		{size: 512, want: "1 KB"},
		{size: 2048, want: "2 KB"},
		{size: 1536 * 1024, want: "1,536 KB"},
		{size: 1234567890, want: "1,205,633 KB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FileSize(tt.size); got != tt.want {
				t.Errorf("FileSize(%d) = %s, want %s", tt.size, got, tt.want)
			}
		})
	}
}

func TestScanControl(t *testing.T) {
	file := datamodel.FileFromBytes("a.exe", []byte("MZ"))
	tests := []struct {
		name        string
		snapshot    session.Snapshot
		wantLabel   string
		wantEnabled bool
	}{
		{name: "no file", snapshot: session.Snapshot{}, wantLabel: "Run scan"},
		{name: "ready", snapshot: session.Snapshot{File: &file, CanScan: true}, wantLabel: "Run scan", wantEnabled: true},
		{name: "in flight", snapshot: session.Snapshot{File: &file, State: session.State{Phase: session.InFlight}}, wantLabel: "Scanning…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, enabled := ScanControl(tt.snapshot)
			if label != tt.wantLabel || enabled != tt.wantEnabled {
				t.Errorf("ScanControl() = (%s, %v), want (%s, %v)", label, enabled, tt.wantLabel, tt.wantEnabled)
			}
		})
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		probability *float64
		want        string
	}{
		{name: "absent", want: NotAvailable},
		{name: "87", probability: ptr(0.87), want: "87%  [#################---]"},
		{name: "zero", probability: ptr(0.0), want: "0%  [--------------------]"},
		{name: "full", probability: ptr(1.0), want: "100%  [####################]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(datamodel.ScanResult{MalwareProbability: tt.probability}); got != tt.want {
				t.Errorf("Score() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBrief(t *testing.T) {
	tests := []struct {
		name   string
		result datamodel.ScanResult
		want   string
	}{
		{
			name:   "malware",
			result: datamodel.ScanResult{Filename: "sample.exe", Label: datamodel.LabelMalware, MalwareProbability: ptr(0.87)},
			want:   "sample.exe: malware (p_malware=0.870)",
		},
		{
			name:   "no probability",
			result: datamodel.ScanResult{Filename: "a.dll", Label: datamodel.LabelSafe},
			want:   "a.dll: safe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Brief(tt.result); got != tt.want {
				t.Errorf("Brief() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestView_Render(t *testing.T) {
	file := datamodel.FileFromBytes("sample.exe", make([]byte, 2048))
	result := datamodel.ScanResult{
		Filename:           "sample.exe",
		Label:              datamodel.LabelMalware,
		MalwareProbability: ptr(0.87),
		Features:           datamodel.Features{{Name: "entropy", Value: 7.1}, {Name: "size", Value: 2048}},
	}

	tests := []struct {
		name     string
		view     View
		snapshot session.Snapshot
		want     string
	}{
		{
			name:     "empty",
			snapshot: session.Snapshot{},
			want: `Scan a file
  No file selected
  [Run scan]

Results
  Upload a file and run a scan to see results.
`,
		},
		{
			name: "failed",
			view: View{Backend: "http://localhost:8000"},
			snapshot: session.Snapshot{
				File:    &file,
				State:   session.State{Phase: session.Failed, Error: "unsupported file type"},
				CanScan: true,
			},
			want: `Scan a file
  sample.exe
  2 KB
  [Run scan]  Backend: http://localhost:8000
  ! unsupported file type

Results
  Upload a file and run a scan to see results.
`,
		},
		{
			name: "succeeded",
			view: View{Backend: "http://localhost:8000"},
			snapshot: session.Snapshot{
				File:     &file,
				State:    session.State{Phase: session.Succeeded, Result: &result},
				CanScan:  true,
				Features: session.FilterFeatures(result.Features, ""),
			},
			want: `Scan a file
  sample.exe
  2 KB
  [Run scan]  Backend: http://localhost:8000

Results
  File: sample.exe  MALWARE
  Malware score: 87%  [#################---]
  Features
   | Name    | Value     |
   | entropy | 7.1000    |
   | size    | 2048.0000 |
`,
		},
		{
			name: "filtered",
			snapshot: session.Snapshot{
				File:     &file,
				State:    session.State{Phase: session.Succeeded, Result: &result},
				CanScan:  true,
				Query:    "ENT",
				Features: session.FilterFeatures(result.Features, "ENT"),
			},
			want: `Scan a file
  sample.exe
  2 KB
  [Run scan]

Results
  File: sample.exe  MALWARE
  Malware score: 87%  [#################---]
  Features (filter: "ENT")
   | Name    | Value  |
   | entropy | 7.1000 |
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := &bytes.Buffer{}
			if err := tt.view.Render(buffer, tt.snapshot); err != nil {
				t.Fatalf("View.Render() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, buffer.String()); diff != "" {
				t.Errorf("View.Render() diff(-want +got) = %s", diff)
			}
		})
	}
}
