package importjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"example.com/leadimport/internal/ingestion"
	"example.com/leadimport/internal/mapping"
	"example.com/leadimport/internal/merge"
	"example.com/leadimport/internal/models"
)

// Manager keeps every import job of the process in memory and runs imports in the background.
type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*Controller
	cfg      Config
	detector *mapping.Detector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager. A nil detector uses the default thresholds.
func NewManager(cfg Config, detector *mapping.Detector) *Manager {
	if cfg.Leads == nil {
		cfg.Leads = merge.NewLeadSet()
	}
	if cfg.Surfaces == nil {
		cfg.Surfaces = NewSurfaces()
	}
	if detector == nil {
		detector = mapping.NewDetector()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:     make(map[string]*Controller),
		cfg:      cfg,
		detector: detector,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddObserver registers o for every job created after the call.
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Observers = append(m.cfg.Observers, o)
}

// Leads returns the lead working set shared by all jobs.
func (m *Manager) Leads() *merge.LeadSet {
	return m.cfg.Leads
}

// Detector returns the mapping detector used when an import has no mapping.
func (m *Manager) Detector() *mapping.Detector {
	return m.detector
}

// Create registers a new pending job.
func (m *Manager) Create(sourceName, surface string, totalRecords int) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.cfg
	cfg.Observers = append([]Observer(nil), m.cfg.Observers...)
	c := New(cfg, sourceName, surface, totalRecords)
	m.jobs[c.ID()] = c
	log.Printf("Created import job %s for source %q on surface %q.", c.ID(), sourceName, surface)
	return c
}

// Get retrieves a job by its ID.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return c, nil
}

// List returns snapshots of all jobs, newest first.
func (m *Manager) List() []models.ImportJob {
	m.mu.RLock()
	list := make([]models.ImportJob, 0, len(m.jobs))
	for _, c := range m.jobs {
		list = append(list, c.Snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// Submit creates and starts a job for table. A nil mapping is detected from the table headers.
// When the surface is busy the job is discarded and ErrSurfaceBusy is returned. The returned
// controller is processing and ready for Run.
func (m *Manager) Submit(sourceName, surface string, table ingestion.Table, fm *models.FieldMapping) (*Controller, models.FieldMapping, error) {
	var resolved models.FieldMapping
	if fm != nil {
		resolved = *fm
	} else {
		resolved = m.detector.Detect(table.Headers)
	}

	c := m.Create(sourceName, surface, table.Len())
	if err := c.Start(); err != nil {
		m.remove(c.ID())
		return nil, resolved, err
	}
	return c, resolved, nil
}

// Import submits a job and runs it in the background. It returns the job as it was when
// processing began.
func (m *Manager) Import(sourceName, surface string, table ingestion.Table, fm *models.FieldMapping) (models.ImportJob, models.FieldMapping, error) {
	c, resolved, err := m.Submit(sourceName, surface, table, fm)
	if err != nil {
		return models.ImportJob{}, resolved, err
	}
	snap := c.Snapshot()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := c.Run(m.ctx, table, resolved); err != nil {
			log.Printf("Import job %s ended with error: %v", c.ID(), err)
		}
	}()
	return snap, resolved, nil
}

// Cancel abandons the job with id.
func (m *Manager) Cancel(id string) (models.ImportJob, error) {
	c, err := m.Get(id)
	if err != nil {
		return models.ImportJob{}, err
	}
	if err := c.Cancel(); err != nil {
		return c.Snapshot(), err
	}
	return c.Snapshot(), nil
}

// Shutdown stops background imports and waits for them to return or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("timed out waiting for import jobs"), ctx.Err())
	}
}
