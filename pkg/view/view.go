// Package view renders a session snapshot as text.
package view

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/glimps-re/pescan/pkg/datamodel"
	"github.com/glimps-re/pescan/pkg/session"
)

const (
	NoFileSelected = "No file selected"
	NoResult       = "Upload a file and run a scan to see results."
	NotAvailable   = "not available"
	ScoreBarWidth  = 20
)

var (
	malwareColor = color.New(color.FgRed, color.Bold)
	safeColor    = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed)
	mutedColor   = color.New(color.Faint)
)

type View struct {
	// Backend is shown next to the scan control when set.
	Backend string
}

// Render writes snapshot with a default View.
func Render(w io.Writer, snapshot session.Snapshot) error {
	return View{}.Render(w, snapshot)
}

func (v View) Render(w io.Writer, snapshot session.Snapshot) (err error) {
	b := &strings.Builder{}
	v.renderSelection(b, snapshot)
	b.WriteString("\n")
	if err = v.renderResult(b, snapshot); err != nil {
		return
	}
	_, err = io.WriteString(w, b.String())
	return
}

// FileSize formats a size the way the upload card shows it: whole kilobytes
// with thousands separators.
func FileSize(sizeBytes int64) string {
	kb := int64(math.Round(float64(sizeBytes) / 1024))
	return humanize.Comma(kb) + " KB"
}

// ScanControl returns the label of the scan control, and whether it can be used.
func ScanControl(snapshot session.Snapshot) (label string, enabled bool) {
	if snapshot.State.Phase == session.InFlight {
		return "Scanning…", false
	}
	return "Run scan", snapshot.CanScan
}

func (v View) renderSelection(b *strings.Builder, snapshot session.Snapshot) {
	b.WriteString("Scan a file\n")
	if snapshot.File == nil {
		fmt.Fprintf(b, "  %s\n", mutedColor.Sprint(NoFileSelected))
	} else {
		fmt.Fprintf(b, "  %s\n  %s\n", snapshot.File.Name, mutedColor.Sprint(FileSize(snapshot.File.SizeBytes)))
	}

	label, enabled := ScanControl(snapshot)
	control := "[" + label + "]"
	if !enabled {
		control = mutedColor.Sprint(control)
	}
	b.WriteString("  " + control)
	if v.Backend != "" {
		fmt.Fprintf(b, "  Backend: %s", v.Backend)
	}
	b.WriteString("\n")

	if snapshot.State.Phase == session.Failed {
		fmt.Fprintf(b, "  %s\n", errorColor.Sprint("! "+snapshot.State.Error))
	}
}

func (v View) renderResult(b *strings.Builder, snapshot session.Snapshot) (err error) {
	b.WriteString("Results\n")
	result, ok := snapshot.Result()
	if !ok {
		fmt.Fprintf(b, "  %s\n", mutedColor.Sprint(NoResult))
		return
	}

	fmt.Fprintf(b, "  File: %s  %s\n", result.Filename, Label(result.Label))
	fmt.Fprintf(b, "  Malware score: %s\n", Score(result))

	if snapshot.Query != "" {
		fmt.Fprintf(b, "  Features (filter: %q)\n", snapshot.Query)
	} else {
		b.WriteString("  Features\n")
	}
	return FeatureTable(b, snapshot.Features)
}

// Label renders the verdict upper-cased, red for malware and green otherwise.
func Label(label datamodel.Label) string {
	text := strings.ToUpper(string(label))
	if label == datamodel.LabelMalware {
		return malwareColor.Sprint(text)
	}
	return safeColor.Sprint(text)
}

// Score renders the malware score with a bar, or "not available".
func Score(result datamodel.ScanResult) string {
	percent, ok := result.ScorePercent()
	if !ok {
		return NotAvailable
	}
	filled := percent * ScoreBarWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", ScoreBarWidth-filled)
	return fmt.Sprintf("%d%%  [%s]", percent, bar)
}

// Brief is the one line verdict: "sample.exe: malware (p_malware=0.870)".
func Brief(result datamodel.ScanResult) string {
	line := result.Filename + ": " + string(result.Label)
	if result.MalwareProbability != nil {
		line += fmt.Sprintf(" (p_malware=%.3f)", *result.MalwareProbability)
	}
	return line
}

// FeatureTable writes features as a two column table, values with four decimals.
func FeatureTable(w io.Writer, features []session.Feature) (err error) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.Debug)
	if _, err = fmt.Fprintln(tw, "  \t Name\t Value\t"); err != nil {
		return
	}
	for _, f := range features {
		if _, err = fmt.Fprintf(tw, "  \t %s\t %s\t\n", f.Name, session.FormatValue(f.Value)); err != nil {
			return
		}
	}
	return tw.Flush()
}
