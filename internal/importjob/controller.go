// Package importjob drives lead import jobs from pending through validation to a terminal
// state, and keeps the set of known jobs.
package importjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/leadimport/internal/collab"
	"example.com/leadimport/internal/ingestion"
	"example.com/leadimport/internal/merge"
	"example.com/leadimport/internal/models"
)

// DefaultBatchSize is the number of rows sent to the validation service per call.
const DefaultBatchSize = 50

// Observer is told about every change to a job. It receives a snapshot and must not block
// for long.
type Observer interface {
	JobUpdated(job models.ImportJob)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(job models.ImportJob)

// JobUpdated calls f(job).
func (f ObserverFunc) JobUpdated(job models.ImportJob) { f(job) }

// Config holds the collaborators shared by every job.
type Config struct {
	Validator collab.Validator
	Enricher  collab.Enricher
	Leads     *merge.LeadSet
	Surfaces  *Surfaces
	BatchSize int
	Observers []Observer
}

// Controller owns the lifecycle of one import job. All mutation of the job goes through it.
type Controller struct {
	mu       sync.RWMutex
	job      models.ImportJob
	leadIDs  map[string]struct{}
	enriched map[string]struct{}
	cfg      Config
}

// New creates a pending job for sourceName on surface expecting totalRecords rows.
func New(cfg Config, sourceName, surface string, totalRecords int) *Controller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Leads == nil {
		cfg.Leads = merge.NewLeadSet()
	}
	if cfg.Surfaces == nil {
		cfg.Surfaces = NewSurfaces()
	}
	if totalRecords < 0 {
		totalRecords = 0
	}
	return &Controller{
		job: models.ImportJob{
			ID:           uuid.New().String(),
			SourceName:   sourceName,
			Surface:      surface,
			Status:       models.JobStatusPending,
			TotalRecords: totalRecords,
			CreatedAt:    time.Now().UTC(),
			Errors:       []string{},
		},
		leadIDs:  make(map[string]struct{}),
		enriched: make(map[string]struct{}),
		cfg:      cfg,
	}
}

// ID returns the job id.
func (c *Controller) ID() string {
	return c.job.ID
}

// Snapshot returns a copy of the job that is safe to hand to readers.
func (c *Controller) Snapshot() models.ImportJob {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() models.ImportJob {
	job := c.job
	job.Errors = append([]string{}, c.job.Errors...)
	if c.job.StartedAt != nil {
		t := *c.job.StartedAt
		job.StartedAt = &t
	}
	if c.job.CompletedAt != nil {
		t := *c.job.CompletedAt
		job.CompletedAt = &t
	}
	return job
}

// Leads returns the leads created by this job, oldest first.
func (c *Controller) Leads() []models.LeadRecord {
	return c.cfg.Leads.List(c.job.ID)
}

// Start moves a pending job to processing. It fails with ErrSurfaceBusy while another job is
// processing on the same surface.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.job.Status != models.JobStatusPending {
		status := c.job.Status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot start job in state %s", ErrInvalidTransition, status)
	}
	if err := c.cfg.Surfaces.Acquire(c.job.Surface, c.job.ID); err != nil {
		c.mu.Unlock()
		return err
	}
	now := time.Now().UTC()
	c.job.Status = models.JobStatusProcessing
	c.job.StartedAt = &now
	snap := c.snapshotLocked()
	c.mu.Unlock()

	log.Printf("Import job %s started on surface %q for source %q (%d records).", snap.ID, snap.Surface, snap.SourceName, snap.TotalRecords)
	c.notify(snap)
	return nil
}

type pendingRow struct {
	row  int
	lead models.LeadRecord
}

// Run turns every row of table into a lead using m and validates the leads in batches. Row
// level failures are recorded on the job and processing continues. A validation failure
// before any row has been processed fails the job and is returned. The job must have been
// started.
func (c *Controller) Run(ctx context.Context, table ingestion.Table, m models.FieldMapping) error {
	c.mu.Lock()
	if c.job.Status != models.JobStatusProcessing {
		status := c.job.Status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot run job in state %s", ErrInvalidTransition, status)
	}
	if c.job.TotalRecords != table.Len() {
		log.Printf("Import job %s expected %d records, table has %d.", c.job.ID, c.job.TotalRecords, table.Len())
		c.job.TotalRecords = table.Len()
	}
	source := c.job.SourceName
	c.mu.Unlock()

	for start := 0; start < len(table.Rows); start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			_ = c.Cancel()
			return fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		if c.Snapshot().Status.IsTerminal() {
			return ErrCancelled
		}

		end := min(start+c.cfg.BatchSize, len(table.Rows))
		batch := make([]pendingRow, 0, end-start)
		for i := start; i < end; i++ {
			rowNum := i + 1
			row := table.Rows[i]
			if err := checkRow(table.Headers, row); err != nil {
				c.recordOutcome(false, fmt.Sprintf("row %d: %v", rowNum, err))
				continue
			}
			lead := models.LeadRecord{
				ID:        uuid.New().String(),
				JobID:     c.job.ID,
				Status:    models.LeadStatusNew,
				Source:    source,
				CreatedAt: time.Now().UTC(),
			}
			for f, v := range rowValues(table.Headers, row, m) {
				lead.SetField(f, v)
			}
			batch = append(batch, pendingRow{row: rowNum, lead: lead})
		}
		if len(batch) == 0 {
			c.notify(c.Snapshot())
			continue
		}

		if err := c.validateBatch(ctx, batch); err != nil {
			return err
		}
		c.notify(c.Snapshot())
	}

	return c.complete()
}

func (c *Controller) registerLeads(batch []pendingRow) {
	leads := make([]models.LeadRecord, len(batch))
	c.mu.Lock()
	for i, p := range batch {
		leads[i] = p.lead
		c.leadIDs[p.lead.ID] = struct{}{}
	}
	c.mu.Unlock()
	c.cfg.Leads.Add(leads...)
}

// validateBatch sends batch to the validator and records one outcome per row. The batch's
// leads join the lead set only once the job survives the call.
func (c *Controller) validateBatch(ctx context.Context, batch []pendingRow) error {
	leads := make([]models.LeadRecord, len(batch))
	for i, p := range batch {
		leads[i] = p.lead
	}

	results, err := c.cfg.Validator.Validate(ctx, leads)
	if err != nil {
		if c.failIfNothingProcessed(fmt.Sprintf("validation service unavailable: %v", err)) {
			return fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
		}
		c.registerLeads(batch)
		log.Printf("Import job %s: validation call failed for rows %d-%d: %v", c.job.ID, batch[0].row, batch[len(batch)-1].row, err)
		for _, p := range batch {
			c.rejectRow(p, fmt.Sprintf("validation failed: %v", err))
		}
		return nil
	}

	c.registerLeads(batch)
	byLead := make(map[string]models.ValidationResult, len(results))
	for _, r := range results {
		byLead[r.LeadID] = r
	}
	for _, p := range batch {
		r, ok := byLead[p.lead.ID]
		if !ok {
			c.rejectRow(p, fmt.Sprintf("no validation result for lead %s", p.lead.ID))
			continue
		}
		c.cfg.Leads.Apply(merge.FromValidation(r))
		if r.Valid {
			c.recordOutcome(true, "")
			continue
		}
		msg := r.Message
		if msg == "" {
			msg = "validation failed"
		}
		c.recordOutcome(false, fmt.Sprintf("row %d: %s", p.row, msg))
	}
	return nil
}

// rejectRow marks the row's lead invalid without a verdict from the validator.
func (c *Controller) rejectRow(p pendingRow, reason string) {
	c.cfg.Leads.Apply(merge.FromValidation(models.ValidationResult{LeadID: p.lead.ID, Valid: false, Message: reason}))
	c.recordOutcome(false, fmt.Sprintf("row %d: %s", p.row, reason))
}

// recordOutcome applies one row's result. processed and valid or invalid move together under
// the lock so readers never see a half-applied row. Outcomes for a job that is no longer
// processing are dropped.
func (c *Controller) recordOutcome(valid bool, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Status != models.JobStatusProcessing || c.job.ProcessedRecords >= c.job.TotalRecords {
		return
	}
	c.job.ProcessedRecords++
	if valid {
		c.job.ValidRecords++
		return
	}
	c.job.InvalidRecords++
	c.job.Errors = append(c.job.Errors, msg)
}

// failIfNothingProcessed fails the job with msg as its only error when no row has been
// processed yet. It reports whether it did.
func (c *Controller) failIfNothingProcessed(msg string) bool {
	c.mu.Lock()
	if c.job.Status != models.JobStatusProcessing || c.job.ProcessedRecords > 0 {
		c.mu.Unlock()
		return false
	}
	c.finishLocked(models.JobStatusFailed, msg)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	log.Printf("Import job %s failed before processing any row: %s", snap.ID, msg)
	c.notify(snap)
	return true
}

func (c *Controller) complete() error {
	c.mu.Lock()
	if c.job.Status != models.JobStatusProcessing {
		c.mu.Unlock()
		return ErrCancelled
	}
	c.finishLocked(models.JobStatusCompleted, "")
	snap := c.snapshotLocked()
	c.mu.Unlock()

	log.Printf("Import job %s completed: %d processed, %d valid, %d invalid.", snap.ID, snap.ProcessedRecords, snap.ValidRecords, snap.InvalidRecords)
	c.notify(snap)
	return nil
}

// finishLocked moves the job to a terminal state and frees its surface. c.mu must be held.
func (c *Controller) finishLocked(status models.JobStatus, errMsg string) {
	now := time.Now().UTC()
	c.job.Status = status
	c.job.CompletedAt = &now
	if errMsg != "" {
		c.job.Errors = append(c.job.Errors, errMsg)
	}
	c.cfg.Surfaces.Release(c.job.Surface, c.job.ID)
}

// Cancel abandons a job that has not finished. The job is marked failed with a "cancelled"
// error and a running Run stops before its next batch.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.job.Status.IsTerminal() {
		status := c.job.Status
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel job in state %s", ErrInvalidTransition, status)
	}
	c.finishLocked(models.JobStatusFailed, CancelledMessage)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	log.Printf("Import job %s cancelled after %d of %d records.", snap.ID, snap.ProcessedRecords, snap.TotalRecords)
	c.notify(snap)
	return nil
}

// AttachEnrichment folds enrichment results for this job's leads into the lead set and counts
// every distinct enriched lead once. Results for other leads are ignored. It returns the number
// of leads counted for the first time.
func (c *Controller) AttachEnrichment(results []models.EnrichmentResult) int {
	c.mu.RLock()
	overlays := make([]merge.Overlay, 0, len(results))
	for _, r := range results {
		if _, ok := c.leadIDs[r.LeadID]; ok {
			overlays = append(overlays, merge.FromEnrichment(r))
		}
	}
	c.mu.RUnlock()
	if len(overlays) == 0 {
		return 0
	}

	updated := c.cfg.Leads.Apply(overlays...)

	c.mu.Lock()
	added := 0
	for _, l := range updated {
		if _, seen := c.enriched[l.ID]; seen {
			continue
		}
		c.enriched[l.ID] = struct{}{}
		c.job.EnrichedRecords++
		added++
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if added > 0 {
		log.Printf("Import job %s: %d leads enriched (%d total).", snap.ID, added, snap.EnrichedRecords)
		c.notify(snap)
	}
	return added
}

// Enrich sends the job's valid leads to the enrichment service and attaches the results. A
// service error is recorded on the job and returned; the job state does not change.
func (c *Controller) Enrich(ctx context.Context) (int, error) {
	if c.cfg.Enricher == nil {
		return 0, errors.New("no enrichment service configured")
	}
	snap := c.Snapshot()
	if snap.Status != models.JobStatusCompleted {
		return 0, fmt.Errorf("%w: cannot enrich job in state %s", ErrInvalidTransition, snap.Status)
	}

	var candidates []models.LeadRecord
	for _, l := range c.Leads() {
		if l.Status == models.LeadStatusValid {
			candidates = append(candidates, l)
		}
	}

	added := 0
	for start := 0; start < len(candidates); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(candidates))
		results, err := c.cfg.Enricher.Enrich(ctx, candidates[start:end])
		if err != nil {
			c.appendError(fmt.Sprintf("enrichment failed: %v", err))
			return added, fmt.Errorf("failed to enrich job %s: %w", snap.ID, err)
		}
		added += c.AttachEnrichment(results)
	}
	return added, nil
}

func (c *Controller) appendError(msg string) {
	c.mu.Lock()
	c.job.Errors = append(c.job.Errors, msg)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Controller) notify(job models.ImportJob) {
	for _, o := range c.cfg.Observers {
		o.JobUpdated(job)
	}
}
