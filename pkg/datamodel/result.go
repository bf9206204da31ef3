package datamodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

type Label string

const (
	LabelSafe    Label = "safe"
	LabelMalware Label = "malware"
)

func (l Label) Valid() bool {
	return l == LabelSafe || l == LabelMalware
}

// ErrInvalidScanResult is returned when a scan response body does not match the expected shape.
var ErrInvalidScanResult = errors.New("invalid scan result")

// Feature is a named numeric signal computed by the classifier.
type Feature struct {
	Name  string
	Value float64
}

// Features keeps the order in which the server sent the features.
type Features []Feature

// UnmarshalJSON decodes a JSON object of numbers, keeping key order.
// A repeated key keeps its first position and takes the last value.
func (f *Features) UnmarshalJSON(data []byte) (err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("features: expected an object, got %v", tok)
	}
	features := Features{}
	index := make(map[string]int)
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("features: unexpected key %v", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return
		}
		number, ok := tok.(json.Number)
		if !ok {
			return fmt.Errorf("features: value of %q is not a number", name)
		}
		value, convErr := number.Float64()
		if convErr != nil {
			return fmt.Errorf("features: value of %q: %w", name, convErr)
		}
		if i, dup := index[name]; dup {
			features[i].Value = value
			continue
		}
		index[name] = len(features)
		features = append(features, Feature{Name: name, Value: value})
	}
	if _, err = dec.Token(); err != nil {
		return
	}
	*f = features
	return
}

// MarshalJSON encodes features as a JSON object, in order.
func (f Features) MarshalJSON() ([]byte, error) {
	buffer := &bytes.Buffer{}
	buffer.WriteByte('{')
	for i, feature := range f {
		if i > 0 {
			buffer.WriteByte(',')
		}
		name, err := json.Marshal(feature.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(feature.Value)
		if err != nil {
			return nil, err
		}
		buffer.Write(name)
		buffer.WriteByte(':')
		buffer.Write(value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// ScanResult is the decoded verdict for one submitted file.
type ScanResult struct {
	Filename           string   `json:"filename"`
	Label              Label    `json:"label"`
	MalwareProbability *float64 `json:"malware_probability"`
	Features           Features `json:"features"`
}

type scanResultBody struct {
	Filename           *string  `json:"filename"`
	Label              *Label   `json:"label"`
	MalwareProbability *float64 `json:"malware_probability"`
	Features           Features `json:"features"`
}

// DecodeScanResult decodes a scan response body. Every error wraps ErrInvalidScanResult.
func DecodeScanResult(data []byte) (result ScanResult, err error) {
	body := scanResultBody{}
	if err = json.Unmarshal(data, &body); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidScanResult, err)
		return
	}
	switch {
	case body.Filename == nil:
		err = fmt.Errorf("%w: missing filename", ErrInvalidScanResult)
	case body.Label == nil:
		err = fmt.Errorf("%w: missing label", ErrInvalidScanResult)
	case !body.Label.Valid():
		err = fmt.Errorf("%w: unknown label %q", ErrInvalidScanResult, *body.Label)
	case body.Features == nil:
		err = fmt.Errorf("%w: missing features", ErrInvalidScanResult)
	}
	if err != nil {
		return
	}
	result = ScanResult{
		Filename:           *body.Filename,
		Label:              *body.Label,
		MalwareProbability: body.MalwareProbability,
		Features:           body.Features,
	}
	return
}

func (r ScanResult) IsMalware() bool {
	return r.Label == LabelMalware
}

// ScorePercent returns the malware probability as a rounded percentage in [0,100].
// ok is false when the server did not provide a probability.
func (r ScanResult) ScorePercent() (percent int, ok bool) {
	if r.MalwareProbability == nil {
		return
	}
	// half rounds up, as in the browser client
	rounded := math.Floor(*r.MalwareProbability*100 + 0.5)
	percent = int(min(max(rounded, 0), 100))
	ok = true
	return
}
