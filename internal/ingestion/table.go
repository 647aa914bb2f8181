// Package ingestion reads tabular lead sources (CSV files and PostgreSQL tables or queries)
// into a header row plus data rows.
package ingestion

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when a source has no header row at all.
var ErrEmptyInput = errors.New("input has no header row")

// Table is a header row plus the data rows that follow it. Rows are kept as read, so a row
// may have more or fewer cells than there are headers.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// TrimHeaders strips surrounding whitespace from every header in place.
func (t *Table) TrimHeaders() {
	for i, h := range t.Headers {
		t.Headers[i] = strings.TrimSpace(h)
	}
}
