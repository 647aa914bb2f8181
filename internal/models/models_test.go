package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadRecord_Fields(t *testing.T) {
	var l LeadRecord
	for _, f := range CanonicalFields {
		l.SetField(f, string(f)+"-value")
	}
	for _, f := range CanonicalFields {
		assert.Equal(t, string(f)+"-value", l.Field(f), "field %s", f)
	}
	assert.Len(t, l.Fields(), len(CanonicalFields))

	l.SetField("shoeSize", "44")
	assert.Empty(t, l.Field("shoeSize"))

	l.SetField(FieldNotes, "")
	_, ok := l.Fields()[FieldNotes]
	assert.False(t, ok, "empty values are left out")
}

func TestIsCanonicalField(t *testing.T) {
	assert.True(t, IsCanonicalField(FieldLinkedIn))
	assert.False(t, IsCanonicalField("linkedIn"))
	assert.False(t, IsCanonicalField(""))
}

func TestFieldMapping_Override(t *testing.T) {
	original := FieldMapping{
		Mapping:             map[string]CanonicalField{"Org": FieldCompany, "Misc": FieldNotes},
		PerHeaderConfidence: map[string]float64{"Org": 0.66, "Misc": 0.2},
		OverallConfidence:   0.66,
		Suggestions:         []CanonicalField{FieldCompany, FieldNotes},
	}

	corrected := original.Override("Misc", FieldIndustry)

	assert.Equal(t, FieldIndustry, corrected.Mapping["Misc"])
	assert.Equal(t, 1.0, corrected.PerHeaderConfidence["Misc"])
	assert.Equal(t, FieldCompany, corrected.Mapping["Org"])
	assert.Equal(t, 0.66, corrected.OverallConfidence)

	assert.Equal(t, FieldNotes, original.Mapping["Misc"], "original is unchanged")
	assert.Equal(t, 0.2, original.PerHeaderConfidence["Misc"])
}

func TestImportJob_Progress(t *testing.T) {
	testCases := []struct {
		name string
		job  ImportJob
		want float64
	}{
		{"Pending", ImportJob{Status: JobStatusPending, TotalRecords: 10}, 0},
		{"Halfway", ImportJob{Status: JobStatusProcessing, TotalRecords: 10, ProcessedRecords: 5}, 50},
		{"Done", ImportJob{Status: JobStatusCompleted, TotalRecords: 4, ProcessedRecords: 4}, 100},
		{"Empty source", ImportJob{Status: JobStatusCompleted}, 100},
		{"Failed early", ImportJob{Status: JobStatusFailed, TotalRecords: 8}, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.job.Progress())
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}

func TestImportJob_JSON(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job := ImportJob{
		ID:               "job-1",
		SourceName:       "crm.csv",
		Status:           JobStatusProcessing,
		TotalRecords:     3,
		ProcessedRecords: 1,
		CreatedAt:        started,
		StartedAt:        &started,
		Errors:           []string{},
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "processing", raw["lifecycleState"])
	assert.NotContains(t, raw, "status")
	for _, key := range []string{"id", "sourceName", "totalRecords", "processedRecords", "validRecords", "invalidRecords", "enrichedRecords", "createdAt", "errors"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "completedAt", "unset completion time is omitted")

	var back ImportJob
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, JobStatusProcessing, back.Status)
}
