package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/leadimport/internal/importjob"
	"example.com/leadimport/internal/models"
)

// ErrNotArchived is returned when a job is not in the archive.
var ErrNotArchived = errors.New("job not found in archive")

// JobRecord is the stored form of an ImportJob.
type JobRecord struct {
	ID               string    `gorm:"type:varchar(36);primary_key"`
	SourceName       string    `gorm:"type:varchar(255);not null"`
	Surface          string    `gorm:"type:varchar(255);index"`
	LifecycleState   string    `gorm:"type:varchar(20);not null;index"`
	TotalRecords     int
	ProcessedRecords int
	ValidRecords     int
	InvalidRecords   int
	EnrichedRecords  int
	Errors           string `gorm:"type:text"` // JSON array
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// TableName keeps the table name stable if the type is renamed.
func (JobRecord) TableName() string {
	return "import_jobs"
}

// NewJobRecord converts a job snapshot into its stored form.
func NewJobRecord(job models.ImportJob) (JobRecord, error) {
	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return JobRecord{}, fmt.Errorf("failed to encode errors of job %s: %w", job.ID, err)
	}
	return JobRecord{
		ID:               job.ID,
		SourceName:       job.SourceName,
		Surface:          job.Surface,
		LifecycleState:   string(job.Status),
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		ValidRecords:     job.ValidRecords,
		InvalidRecords:   job.InvalidRecords,
		EnrichedRecords:  job.EnrichedRecords,
		Errors:           string(encoded),
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
	}, nil
}

// ImportJob converts the record back into a job snapshot.
func (r JobRecord) ImportJob() (models.ImportJob, error) {
	errs := []string{}
	if r.Errors != "" {
		if err := json.Unmarshal([]byte(r.Errors), &errs); err != nil {
			return models.ImportJob{}, fmt.Errorf("failed to decode errors of job %s: %w", r.ID, err)
		}
	}
	return models.ImportJob{
		ID:               r.ID,
		SourceName:       r.SourceName,
		Surface:          r.Surface,
		Status:           models.JobStatus(r.LifecycleState),
		TotalRecords:     r.TotalRecords,
		ProcessedRecords: r.ProcessedRecords,
		ValidRecords:     r.ValidRecords,
		InvalidRecords:   r.InvalidRecords,
		EnrichedRecords:  r.EnrichedRecords,
		CreatedAt:        r.CreatedAt,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Errors:           errs,
	}, nil
}

// LeadSource lists the leads of a job.
type LeadSource interface {
	List(jobID string) []models.LeadRecord
}

// Archive stores jobs that reached a terminal state together with their leads. Saving is an
// upsert, so a job archived again after enrichment overwrites its earlier copy.
type Archive struct {
	db    *gorm.DB
	leads LeadSource
}

var _ importjob.Observer = (*Archive)(nil)

// NewArchive creates an Archive writing to db and reading leads from leads.
func NewArchive(db *gorm.DB, leads LeadSource) *Archive {
	return &Archive{db: db, leads: leads}
}

// JobUpdated archives terminal jobs. Errors are logged.
func (a *Archive) JobUpdated(job models.ImportJob) {
	if !job.Status.IsTerminal() {
		return
	}
	if err := a.SaveJob(job, a.leads.List(job.ID)); err != nil {
		log.Printf("Error archiving import job %s: %v", job.ID, err)
	}
}

// SaveJob upserts the job and its leads in one transaction.
func (a *Archive) SaveJob(job models.ImportJob, leads []models.LeadRecord) error {
	record, err := NewJobRecord(job)
	if err != nil {
		return err
	}
	err = a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save job record: %w", err)
		}
		if len(leads) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&leads, 100).Error; err != nil {
			return fmt.Errorf("failed to save %d leads: %w", len(leads), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("Archived import job %s (%s) with %d leads.", job.ID, job.Status, len(leads))
	return nil
}

// GetJob loads an archived job.
func (a *Archive) GetJob(id string) (models.ImportJob, error) {
	var record JobRecord
	if err := a.db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ImportJob{}, fmt.Errorf("%w: %s", ErrNotArchived, id)
		}
		return models.ImportJob{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return record.ImportJob()
}

// ListJobs returns all archived jobs, newest first.
func (a *Archive) ListJobs() ([]models.ImportJob, error) {
	var records []JobRecord
	if err := a.db.Order("created_at desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list archived jobs: %w", err)
	}
	jobs := make([]models.ImportJob, 0, len(records))
	for _, r := range records {
		job, err := r.ImportJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ListLeads returns the archived leads of a job in creation order.
func (a *Archive) ListLeads(jobID string) ([]models.LeadRecord, error) {
	var leads []models.LeadRecord
	if err := a.db.Where("job_id = ?", jobID).Order("created_at asc, id asc").Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("failed to list leads of job %s: %w", jobID, err)
	}
	return leads, nil
}
