package models

import "time"

// CanonicalField is one of the fixed lead attributes a source column can be mapped to.
type CanonicalField string

const (
	FieldName        CanonicalField = "name"
	FieldEmail       CanonicalField = "email"
	FieldCompany     CanonicalField = "company"
	FieldPhone       CanonicalField = "phone"
	FieldJobTitle    CanonicalField = "jobTitle"
	FieldIndustry    CanonicalField = "industry"
	FieldCompanySize CanonicalField = "companySize"
	FieldLinkedIn    CanonicalField = "linkedin"
	FieldBudget      CanonicalField = "budget"
	FieldAuthority   CanonicalField = "authority"
	FieldNeed        CanonicalField = "need"
	FieldTimeline    CanonicalField = "timeline"
	FieldNotes       CanonicalField = "notes" // Fallback for anything that does not match
)

// CanonicalFields lists every canonical field in catalog order.
var CanonicalFields = []CanonicalField{
	FieldName, FieldEmail, FieldCompany, FieldPhone, FieldJobTitle, FieldIndustry,
	FieldCompanySize, FieldLinkedIn, FieldBudget, FieldAuthority, FieldNeed, FieldTimeline,
	FieldNotes,
}

// IsCanonicalField reports whether f names one of the canonical fields.
func IsCanonicalField(f CanonicalField) bool {
	for _, c := range CanonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

// FieldValues is a sparse set of canonical field values. A key that is present is a value to
// write, even when the value is empty.
type FieldValues map[CanonicalField]string

// LeadStatus is the validation/enrichment status of a lead.
type LeadStatus string

const (
	LeadStatusNew      LeadStatus = "new"
	LeadStatusValid    LeadStatus = "valid"
	LeadStatusInvalid  LeadStatus = "invalid"
	LeadStatusEnriched LeadStatus = "enriched"
)

// LeadRecord is one lead built from a source row.
type LeadRecord struct {
	ID          string     `json:"id" gorm:"type:varchar(36);primary_key"`
	JobID       string     `json:"jobId" gorm:"type:varchar(36);index"`
	Name        string     `json:"name,omitempty" gorm:"type:varchar(255)"`
	Email       string     `json:"email,omitempty" gorm:"type:varchar(255)"`
	Company     string     `json:"company,omitempty" gorm:"type:varchar(255)"`
	Phone       string     `json:"phone,omitempty" gorm:"type:varchar(64)"`
	JobTitle    string     `json:"jobTitle,omitempty" gorm:"type:varchar(255)"`
	Industry    string     `json:"industry,omitempty" gorm:"type:varchar(255)"`
	CompanySize string     `json:"companySize,omitempty" gorm:"type:varchar(64)"`
	LinkedIn    string     `json:"linkedin,omitempty" gorm:"type:varchar(512)"`
	Budget      string     `json:"budget,omitempty" gorm:"type:varchar(255)"`
	Authority   string     `json:"authority,omitempty" gorm:"type:varchar(255)"`
	Need        string     `json:"need,omitempty" gorm:"type:text"`
	Timeline    string     `json:"timeline,omitempty" gorm:"type:varchar(255)"`
	Notes       string     `json:"notes,omitempty" gorm:"type:text"`
	Status      LeadStatus `json:"status" gorm:"type:varchar(20);not null"`
	Score       float64    `json:"score"`
	Source      string     `json:"source" gorm:"type:varchar(255)"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Field returns the value held in the slot for f.
func (l *LeadRecord) Field(f CanonicalField) string {
	if p := l.slot(f); p != nil {
		return *p
	}
	return ""
}

// SetField writes v into the slot for f. Unknown fields are ignored.
func (l *LeadRecord) SetField(f CanonicalField, v string) {
	if p := l.slot(f); p != nil {
		*p = v
	}
}

// Fields returns the non-empty canonical values of the lead.
func (l *LeadRecord) Fields() FieldValues {
	out := make(FieldValues)
	for _, f := range CanonicalFields {
		if v := l.Field(f); v != "" {
			out[f] = v
		}
	}
	return out
}

func (l *LeadRecord) slot(f CanonicalField) *string {
	switch f {
	case FieldName:
		return &l.Name
	case FieldEmail:
		return &l.Email
	case FieldCompany:
		return &l.Company
	case FieldPhone:
		return &l.Phone
	case FieldJobTitle:
		return &l.JobTitle
	case FieldIndustry:
		return &l.Industry
	case FieldCompanySize:
		return &l.CompanySize
	case FieldLinkedIn:
		return &l.LinkedIn
	case FieldBudget:
		return &l.Budget
	case FieldAuthority:
		return &l.Authority
	case FieldNeed:
		return &l.Need
	case FieldTimeline:
		return &l.Timeline
	case FieldNotes:
		return &l.Notes
	}
	return nil
}

// FieldMapping is the detector's answer for one set of headers. It is not modified after
// creation; Override returns a corrected copy.
type FieldMapping struct {
	Mapping             map[string]CanonicalField `json:"mapping"`
	PerHeaderConfidence map[string]float64        `json:"perHeaderConfidence"`
	OverallConfidence   float64                   `json:"overallConfidence"`
	Suggestions         []CanonicalField          `json:"suggestions"`
}

// Override returns a copy of m with header mapped to field by a reviewer. The corrected
// header gets full confidence; the overall confidence is left as detected.
func (m FieldMapping) Override(header string, field CanonicalField) FieldMapping {
	out := FieldMapping{
		Mapping:             make(map[string]CanonicalField, len(m.Mapping)+1),
		PerHeaderConfidence: make(map[string]float64, len(m.PerHeaderConfidence)+1),
		OverallConfidence:   m.OverallConfidence,
		Suggestions:         append([]CanonicalField(nil), m.Suggestions...),
	}
	for h, f := range m.Mapping {
		out.Mapping[h] = f
	}
	for h, c := range m.PerHeaderConfidence {
		out.PerHeaderConfidence[h] = c
	}
	out.Mapping[header] = field
	out.PerHeaderConfidence[header] = 1
	return out
}

// EnrichmentResult is what the enrichment service returns for one lead.
type EnrichmentResult struct {
	LeadID          string           `json:"leadId"`
	Original        FieldValues      `json:"original"`
	Enriched        FieldValues      `json:"enriched"`
	EnrichmentScore float64          `json:"enrichmentScore"`
	NewFields       []CanonicalField `json:"newFields"`
	Confidence      float64          `json:"confidence"`
}

// ValidationResult is what the validation service returns for one lead.
type ValidationResult struct {
	LeadID  string      `json:"leadId"`
	Valid   bool        `json:"valid"`
	Message string      `json:"message,omitempty"`
	Updates FieldValues `json:"updates,omitempty"`
}
