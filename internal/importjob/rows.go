package importjob

import (
	"fmt"

	"example.com/leadimport/internal/models"
)

// rowValues picks the canonical field values out of one row. Headers missing from the mapping
// go to notes. When several headers map to the same field, the last one wins.
func rowValues(headers, row []string, m models.FieldMapping) models.FieldValues {
	values := make(models.FieldValues, len(headers))
	for i, h := range headers {
		field, ok := m.Mapping[h]
		if !ok {
			field = models.FieldNotes
		}
		values[field] = row[i]
	}
	return values
}

// checkRow reports why a row cannot be turned into a lead, or nil when it can.
func checkRow(headers, row []string) error {
	if len(row) != len(headers) {
		return fmt.Errorf("malformed row: expected %d cells, got %d", len(headers), len(row))
	}
	return nil
}
