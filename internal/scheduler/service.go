// Package scheduler runs lead imports on cron schedules declared in a YAML file.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"example.com/leadimport/internal/importjob"
	"example.com/leadimport/internal/ingestion"
)

// TableLoader reads the rows of a scheduled source.
type TableLoader func(ctx context.Context, src SourceSpec) (ingestion.Table, error)

// Service triggers scheduled imports through the job manager.
type Service struct {
	cronRunner *cron.Cron
	manager    *importjob.Manager
	loadTable  TableLoader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a scheduler. A nil loader uses LoadTable.
func NewService(manager *importjob.Manager, loader TableLoader) *Service {
	if loader == nil {
		loader = LoadTable
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cronRunner: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
		manager:   manager,
		loadTable: loader,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register adds every enabled schedule to the cron runner.
func (s *Service) Register(schedules []Schedule) error {
	for _, schedule := range schedules {
		if !schedule.IsEnabled() {
			log.Printf("Schedule %s is disabled, skipping.", schedule.Name)
			continue
		}
		sch := schedule
		entryID, err := s.cronRunner.AddFunc(sch.Cron, func() {
			if err := s.RunSchedule(s.ctx, sch); err != nil {
				log.Printf("Scheduled import %s failed: %v", sch.Name, err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s with cron '%s': %w", sch.Name, sch.Cron, err)
		}
		log.Printf("Scheduled import %s (entry %d) on surface %q with cron '%s'.", sch.Name, entryID, sch.Surface, sch.Cron)
	}
	return nil
}

// Len returns the number of registered schedules.
func (s *Service) Len() int {
	return len(s.cronRunner.Entries())
}

// RunSchedule performs one import for sch and blocks until the job is finished. A busy surface
// skips this run.
func (s *Service) RunSchedule(ctx context.Context, sch Schedule) error {
	log.Printf("Executing scheduled import %s from %s source %s", sch.Name, sch.Source.Type, sch.Source.Name())
	table, err := s.loadTable(ctx, sch.Source)
	if err != nil {
		return fmt.Errorf("failed to load source for schedule %s: %w", sch.Name, err)
	}

	c, fm, err := s.manager.Submit(sch.Source.Name(), sch.Surface, table, nil)
	if err != nil {
		if errors.Is(err, importjob.ErrSurfaceBusy) {
			log.Printf("Skipping scheduled import %s: %v", sch.Name, err)
			return nil
		}
		return err
	}
	log.Printf("Scheduled import %s started job %s with mapping confidence %.2f.", sch.Name, c.ID(), fm.OverallConfidence)

	if err := c.Run(ctx, table, fm); err != nil {
		return fmt.Errorf("job %s: %w", c.ID(), err)
	}
	job := c.Snapshot()
	log.Printf("Scheduled import %s finished job %s: %d valid, %d invalid of %d.", sch.Name, job.ID, job.ValidRecords, job.InvalidRecords, job.TotalRecords)
	return nil
}

// Start begins running the registered schedules.
func (s *Service) Start() {
	s.cronRunner.Start()
	log.Println("Cron scheduler started.")
}

// Stop halts the cron runner and cancels running imports. The returned context is done once
// running schedules have returned.
func (s *Service) Stop() context.Context {
	log.Println("Stopping cron scheduler...")
	s.cancel()
	return s.cronRunner.Stop()
}
