// Package mapping aligns arbitrary column headers to canonical lead fields.
package mapping

import (
	"strings"

	"example.com/leadimport/internal/models"
	"example.com/leadimport/internal/similarity"
)

const (
	// DefaultAcceptThreshold is the score a header must exceed to be mapped to its best field.
	DefaultAcceptThreshold = 0.5
	// DefaultSuggestThreshold is the score a field must exceed to be offered as a suggestion.
	DefaultSuggestThreshold = 0.3
)

// Detector scores headers against a pattern catalog.
type Detector struct {
	AcceptThreshold  float64
	SuggestThreshold float64
	Catalog          []FieldPattern
}

// NewDetector returns a Detector over the default catalog and thresholds.
func NewDetector() *Detector {
	return &Detector{
		AcceptThreshold:  DefaultAcceptThreshold,
		SuggestThreshold: DefaultSuggestThreshold,
		Catalog:          Catalog,
	}
}

// Detect maps headers with the default detector.
func Detect(headers []string) models.FieldMapping {
	return NewDetector().Detect(headers)
}

// Detect produces a mapping entry for every header. Headers that do not clear the accept
// threshold fall back to notes; an empty header list yields an empty mapping with zero
// confidence.
func (d *Detector) Detect(headers []string) models.FieldMapping {
	result := models.FieldMapping{
		Mapping:             make(map[string]models.CanonicalField, len(headers)),
		PerHeaderConfidence: make(map[string]float64, len(headers)),
		Suggestions:         []models.CanonicalField{},
	}
	seen := make(map[models.CanonicalField]bool)
	suggest := func(f models.CanonicalField) {
		if !seen[f] {
			seen[f] = true
			result.Suggestions = append(result.Suggestions, f)
		}
	}

	catalog := d.Catalog
	if catalog == nil {
		catalog = Catalog
	}

	var total float64
	matched := 0
	for _, header := range headers {
		normalized := normalizeHeader(header)

		bestField := models.FieldNotes
		bestConfidence := 0.0
		for _, pattern := range catalog {
			for _, alias := range pattern.Aliases {
				score := similarity.Score(normalized, alias)
				if score > bestConfidence {
					bestConfidence = score
					bestField = pattern.Field
				}
				if score > d.SuggestThreshold {
					suggest(pattern.Field)
				}
			}
		}

		result.PerHeaderConfidence[header] = bestConfidence
		if bestConfidence > d.AcceptThreshold {
			result.Mapping[header] = bestField
			total += bestConfidence
			matched++
		} else {
			result.Mapping[header] = models.FieldNotes
			suggest(models.FieldNotes)
		}
	}

	if matched > 0 {
		result.OverallConfidence = total / float64(matched)
	}
	return result
}

// normalizeHeader lower-cases a header and replaces every character outside [a-z0-9] with '_'.
func normalizeHeader(header string) string {
	lower := strings.ToLower(header)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
