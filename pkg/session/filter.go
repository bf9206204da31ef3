package session

import (
	"strconv"
	"strings"

	"github.com/glimps-re/pescan/pkg/datamodel"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Feature is one visible row of the feature table.
type Feature = datamodel.Feature

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// FilterFeatures returns the features whose lower-cased name contains the
// trimmed, lower-cased query, in their original order. An empty query keeps
// every feature.
func FilterFeatures(features datamodel.Features, query string) []Feature {
	q := lower(strings.TrimSpace(query))
	visible := make([]Feature, 0, len(features))
	for _, f := range features {
		if q == "" || strings.Contains(lower(f.Name), q) {
			visible = append(visible, f)
		}
	}
	return visible
}

// FormatValue renders a feature value with four decimals.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
