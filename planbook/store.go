package planbook

import (
	"errors"
	"sync"

	"careplan-api/domain"
)

// ErrNotFound is returned when a template id is unknown to the store.
var ErrNotFound = errors.New("template not found")

// Applied records which template was last expanded onto which date, for UI
// feedback after an application run.
type Applied struct {
	TemplateID string `json:"templateId"`
	Date       string `json:"date"`
}

// Store holds the reusable weekly visit templates per agency, the template
// currently open for editing, and the last-applied marker.
//
// At most one template per agency is conventionally active; Activate
// enforces the convention by resetting every other template. No validation
// of visit times or day values happens here; that is deferred to the
// application workflow.
type Store struct {
	mu          sync.Mutex
	templates   map[string][]domain.Template
	current     map[string]string
	lastApplied map[string]Applied
}

// NewStore creates an empty template store.
func NewStore() *Store {
	return &Store{
		templates:   make(map[string][]domain.Template),
		current:     make(map[string]string),
		lastApplied: make(map[string]Applied),
	}
}

// ReplaceAll installs the agency's templates, replacing any previous set.
// Used by ingestion.
func (s *Store) ReplaceAll(agencyID string, templates []domain.Template) {
	s.mu.Lock()
	s.templates[agencyID] = append([]domain.Template(nil), templates...)
	s.mu.Unlock()
}

// List returns a copy of the agency's templates in insertion order.
func (s *Store) List(agencyID string) []domain.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Template(nil), s.templates[agencyID]...)
}

// Get looks up one template by id.
func (s *Store) Get(agencyID, templateID string) (domain.Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tpl := range s.templates[agencyID] {
		if tpl.ID == templateID {
			return tpl, true
		}
	}
	return domain.Template{}, false
}

// Create appends a new template.
func (s *Store) Create(agencyID string, tpl domain.Template) {
	s.mu.Lock()
	s.templates[agencyID] = append(s.templates[agencyID], tpl)
	s.mu.Unlock()
}

// Update replaces the template with a matching id in place.
func (s *Store) Update(agencyID string, tpl domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.templates[agencyID]
	for i := range list {
		if list[i].ID == tpl.ID {
			list[i] = tpl
			return nil
		}
	}
	return ErrNotFound
}

// Delete removes a template. Events already expanded from it are untouched;
// expansion is a one-time copy, not a live binding.
func (s *Store) Delete(agencyID, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.templates[agencyID]
	for i := range list {
		if list[i].ID == templateID {
			s.templates[agencyID] = append(list[:i], list[i+1:]...)
			if s.current[agencyID] == templateID {
				delete(s.current, agencyID)
			}
			return nil
		}
	}
	return ErrNotFound
}

// Activate marks the given template active and resets every other template
// in the agency, enforcing mutual exclusivity at this layer.
func (s *Store) Activate(agencyID, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.templates[agencyID]
	found := false
	for i := range list {
		list[i].IsActive = list[i].ID == templateID
		if list[i].IsActive {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// SetCurrent marks the template being edited. Independent of IsActive.
func (s *Store) SetCurrent(agencyID, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tpl := range s.templates[agencyID] {
		if tpl.ID == templateID {
			s.current[agencyID] = templateID
			return nil
		}
	}
	return ErrNotFound
}

// ClearCurrent closes the edit slot.
func (s *Store) ClearCurrent(agencyID string) {
	s.mu.Lock()
	delete(s.current, agencyID)
	s.mu.Unlock()
}

// Current returns the template open for editing, if any.
func (s *Store) Current(agencyID string) (domain.Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.current[agencyID]
	if !ok {
		return domain.Template{}, false
	}
	for _, tpl := range s.templates[agencyID] {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return domain.Template{}, false
}

// AddVisits appends visits to the template currently being edited. No-op
// when no template is open.
func (s *Store) AddVisits(agencyID string, visits []domain.TemplateVisit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.current[agencyID]
	if !ok {
		return
	}
	list := s.templates[agencyID]
	for i := range list {
		if list[i].ID == id {
			list[i].Visits = append(list[i].Visits, visits...)
			return
		}
	}
}

// RemoveVisit removes one visit from the template currently being edited.
// No-op when no template is open or the visit id is unknown.
func (s *Store) RemoveVisit(agencyID, visitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.current[agencyID]
	if !ok {
		return
	}
	list := s.templates[agencyID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		for j := range list[i].Visits {
			if list[i].Visits[j].ID == visitID {
				list[i].Visits = append(list[i].Visits[:j], list[i].Visits[j+1:]...)
				return
			}
		}
		return
	}
}

// RecordApplied stores the last-applied marker for the agency.
func (s *Store) RecordApplied(agencyID, templateID, date string) {
	s.mu.Lock()
	s.lastApplied[agencyID] = Applied{TemplateID: templateID, Date: date}
	s.mu.Unlock()
}

// LastApplied returns the last-applied marker, if any application has run.
func (s *Store) LastApplied(agencyID string) (Applied, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.lastApplied[agencyID]
	return a, ok
}
