package importjob

import (
	"fmt"
	"sync"
)

// Surfaces tracks which job is processing on each ingestion surface. A surface is the entry
// point an import came through, such as an upload form or a named schedule.
type Surfaces struct {
	mu     sync.Mutex
	active map[string]string // surface -> job id
}

// NewSurfaces creates an empty registry.
func NewSurfaces() *Surfaces {
	return &Surfaces{active: make(map[string]string)}
}

// Acquire claims surface for jobID. It fails with ErrSurfaceBusy when a different job holds it.
func (s *Surfaces) Acquire(surface, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder, ok := s.active[surface]; ok && holder != jobID {
		return fmt.Errorf("%w: surface %q is held by job %s", ErrSurfaceBusy, surface, holder)
	}
	s.active[surface] = jobID
	return nil
}

// Release frees surface if jobID holds it.
func (s *Surfaces) Release(surface, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[surface] == jobID {
		delete(s.active, surface)
	}
}

// Active returns the id of the job processing on surface, if any.
func (s *Surfaces) Active(surface string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[surface]
	return id, ok
}
