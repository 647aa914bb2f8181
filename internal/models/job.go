package models

import "time"

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ImportJob is a point-in-time view of one ingestion attempt.
type ImportJob struct {
	ID               string     `json:"id"`
	SourceName       string     `json:"sourceName"`
	Surface          string     `json:"surface"`
	Status           JobStatus  `json:"lifecycleState"`
	TotalRecords     int        `json:"totalRecords"`
	ProcessedRecords int        `json:"processedRecords"`
	ValidRecords     int        `json:"validRecords"`
	InvalidRecords   int        `json:"invalidRecords"`
	EnrichedRecords  int        `json:"enrichedRecords"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Errors           []string   `json:"errors"`
}

// Progress returns the share of processed records as a percentage. A started job with no
// records reports 100; a pending one reports 0.
func (j ImportJob) Progress() float64 {
	if j.Status == JobStatusPending {
		return 0
	}
	if j.TotalRecords == 0 {
		return 100
	}
	return float64(j.ProcessedRecords) / float64(j.TotalRecords) * 100
}
