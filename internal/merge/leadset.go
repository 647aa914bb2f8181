package merge

import (
	"sync"

	"example.com/leadimport/internal/models"
)

// LeadSet is the in-memory working set of leads shared by import jobs. Leads are listed in
// the order they were first added. All access goes through its methods.
type LeadSet struct {
	mu    sync.RWMutex
	leads map[string]models.LeadRecord
	order []string
}

// NewLeadSet creates an empty LeadSet.
func NewLeadSet() *LeadSet {
	return &LeadSet{leads: make(map[string]models.LeadRecord)}
}

// Add inserts or replaces leads by id.
func (s *LeadSet) Add(leads ...models.LeadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range leads {
		if _, ok := s.leads[l.ID]; !ok {
			s.order = append(s.order, l.ID)
		}
		s.leads[l.ID] = l
	}
}

// Get retrieves a lead by its ID.
func (s *LeadSet) Get(id string) (models.LeadRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	return l, ok
}

// Apply merges overlays into the set and returns the touched leads in insertion order.
func (s *LeadSet) Apply(overlays ...Overlay) []models.LeadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]models.LeadRecord)
	for _, o := range overlays {
		if l, ok := s.leads[o.LeadID]; ok {
			touched[o.LeadID] = l
		}
	}
	if len(touched) == 0 {
		return nil
	}
	updated := Apply(touched, overlays...)
	result := make([]models.LeadRecord, 0, len(updated))
	for _, id := range s.order {
		if l, ok := updated[id]; ok {
			s.leads[id] = l
			result = append(result, l)
		}
	}
	return result
}

// List returns the leads, optionally restricted to one job, in insertion order.
func (s *LeadSet) List(jobID string) []models.LeadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.LeadRecord, 0, len(s.leads))
	for _, id := range s.order {
		l := s.leads[id]
		if jobID == "" || l.JobID == jobID {
			list = append(list, l)
		}
	}
	return list
}

// Snapshot returns a copy of the whole set keyed by id.
func (s *LeadSet) Snapshot() map[string]models.LeadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.LeadRecord, len(s.leads))
	for id, l := range s.leads {
		out[id] = l
	}
	return out
}

// Len returns the number of leads held.
func (s *LeadSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}
