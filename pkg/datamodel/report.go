package datamodel

import (
	"encoding/json"
	"io"
)

// Report is the machine-readable rendition of one scan.
type Report struct {
	Filename           string   `json:"filename"`
	Label              Label    `json:"label"`
	MalwareProbability *float64 `json:"malware_probability"`
	Score              *int     `json:"score,omitempty"`
	Size               int64    `json:"size,omitempty"`
	Location           string   `json:"location,omitempty"`
	Features           Features `json:"features"`
}

func NewReport(file FileRef, result ScanResult) Report {
	report := Report{
		Filename:           result.Filename,
		Label:              result.Label,
		MalwareProbability: result.MalwareProbability,
		Size:               file.SizeBytes,
		Location:           file.Location,
		Features:           result.Features,
	}
	if report.Features == nil {
		report.Features = Features{}
	}
	if score, ok := result.ScorePercent(); ok {
		report.Score = &score
	}
	return report
}

func WriteReport(dst io.Writer, r Report) (err error) {
	encoder := json.NewEncoder(dst)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(r)
	return
}
