// Package merge folds validation and enrichment responses back into a lead working set.
package merge

import (
	"example.com/leadimport/internal/models"
)

// Overlay is a sparse update for one lead. Only the fields present in Fields are written, and
// Status/Score only when set.
type Overlay struct {
	LeadID string
	Fields models.FieldValues
	Status *models.LeadStatus
	Score  *float64
}

// FromEnrichment turns an enrichment result into an overlay. The enriched snapshot is applied
// as-is and the lead is marked enriched with the enrichment score.
func FromEnrichment(r models.EnrichmentResult) Overlay {
	status := models.LeadStatusEnriched
	score := r.EnrichmentScore
	return Overlay{
		LeadID: r.LeadID,
		Fields: r.Enriched,
		Status: &status,
		Score:  &score,
	}
}

// FromValidation turns a validation result into an overlay carrying the verdict and any
// corrections the validator made.
func FromValidation(r models.ValidationResult) Overlay {
	status := models.LeadStatusInvalid
	if r.Valid {
		status = models.LeadStatusValid
	}
	return Overlay{
		LeadID: r.LeadID,
		Fields: r.Updates,
		Status: &status,
	}
}

// Apply returns a copy of leads with the overlays applied in order. Overlays for ids that are
// not in leads are skipped. Applying the same overlay again leaves the result unchanged.
func Apply(leads map[string]models.LeadRecord, overlays ...Overlay) map[string]models.LeadRecord {
	out := make(map[string]models.LeadRecord, len(leads))
	for id, lead := range leads {
		out[id] = lead
	}
	for _, o := range overlays {
		lead, ok := out[o.LeadID]
		if !ok {
			continue
		}
		out[o.LeadID] = applyOne(lead, o)
	}
	return out
}

func applyOne(lead models.LeadRecord, o Overlay) models.LeadRecord {
	for f, v := range o.Fields {
		lead.SetField(f, v)
	}
	if o.Status != nil {
		lead.Status = *o.Status
	}
	if o.Score != nil {
		lead.Score = *o.Score
	}
	return lead
}
