package schedule

import (
	"errors"
	"sync"
	"time"

	"careplan-api/domain"
)

// ErrNotFound is returned by Update and Delete when no event carries the
// requested id. The source system ignored these silently; surfacing the
// condition was chosen here so callers can report a 404 instead of quietly
// dropping a mutation.
var ErrNotFound = errors.New("event not found")

// DialogMode names the open creation/edit dialog, if any.
type DialogMode string

const (
	DialogCreate DialogMode = "create"
	DialogEdit   DialogMode = "edit"
	DialogNone   DialogMode = ""
)

// Dialog is the single-slot dialog state machine: at most one creation or
// edit dialog is active at a time, and opening a new one displaces the old.
type Dialog struct {
	IsOpen          bool          `json:"isOpen"`
	Mode            DialogMode    `json:"mode"`
	SelectedEventID string        `json:"selectedEventId,omitempty"`
	SelectedEvent   *domain.Event `json:"selectedEvent,omitempty"`
}

// Store is the authoritative schedule state for one agency: the full event
// list, the derived filtered view, the sidebar mode and allow-lists driving
// it, dialog state, and the last ingestion error.
//
// Every mutation recomputes the filtered view before releasing the lock, so
// readers never observe a view that lags the event list.
type Store struct {
	agencyID string

	mu       sync.Mutex
	events   []domain.Event
	filtered []domain.Event
	mode     domain.SidebarMode
	sel      domain.Selection
	dialog   Dialog
	lastErr  string
	subs     map[chan struct{}]struct{}
}

// NewStore creates an empty store for the given agency. The initial sidebar
// mode filters by client, matching the platform default.
func NewStore(agencyID string) *Store {
	return &Store{
		agencyID: agencyID,
		mode:     domain.ModeClients,
		subs:     make(map[chan struct{}]struct{}),
	}
}

// AgencyID returns the agency this store belongs to.
func (s *Store) AgencyID() string { return s.agencyID }

// ReplaceAll discards the current events and installs the given set,
// normalized order preserved.
func (s *Store) ReplaceAll(events []domain.Event) {
	s.mu.Lock()
	s.events = append([]domain.Event(nil), events...)
	s.recomputeLocked()
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
}

// Add appends one event. No uniqueness check is performed at this layer;
// callers are responsible for id uniqueness.
func (s *Store) Add(ev domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// Update replaces the event with a matching id in place, preserving list
// order. It returns ErrNotFound when the id is unknown.
func (s *Store) Update(ev domain.Event) error {
	s.mu.Lock()
	for i := range s.events {
		if s.events[i].ID == ev.ID {
			s.events[i] = ev
			s.recomputeLocked()
			s.mu.Unlock()
			s.notify()
			return nil
		}
	}
	s.mu.Unlock()
	return ErrNotFound
}

// Delete removes the event with the given id. It returns ErrNotFound when
// the id is unknown.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	for i := range s.events {
		if s.events[i].ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			s.recomputeLocked()
			s.mu.Unlock()
			s.notify()
			return nil
		}
	}
	s.mu.Unlock()
	return ErrNotFound
}

// ClearForDate removes every event whose start falls on the given local
// calendar day. Events on other days keep their relative order.
func (s *Store) ClearForDate(day time.Time) int {
	s.mu.Lock()
	removed := s.clearForDateLocked(day)
	if removed > 0 {
		s.recomputeLocked()
	}
	s.mu.Unlock()
	if removed > 0 {
		s.notify()
	}
	return removed
}

// ReplaceDay clears the given calendar day and inserts the staged events in
// one mutation, so no reader observes the day half applied. Template
// application uses this to stay idempotent per (template, date).
func (s *Store) ReplaceDay(day time.Time, events []domain.Event) {
	s.mu.Lock()
	s.clearForDateLocked(day)
	s.events = append(s.events, events...)
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) clearForDateLocked(day time.Time) int {
	kept := s.events[:0]
	removed := 0
	for _, ev := range s.events {
		if domain.SameCalendarDay(ev.Start, day) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return removed
}

// Events returns a copy of the full event list in insertion order.
func (s *Store) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// Filtered returns a copy of the derived filtered view.
func (s *Store) Filtered() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.filtered...)
}

// SetSidebarMode switches the filtering axis and recomputes the view.
func (s *Store) SetSidebarMode(mode domain.SidebarMode) {
	s.mu.Lock()
	s.mode = mode
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// SidebarMode returns the active filtering axis.
func (s *Store) SidebarMode() domain.SidebarMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetFilteredClients replaces the client allow-list.
func (s *Store) SetFilteredClients(ids []string) {
	s.mu.Lock()
	s.sel.ClientIDs = append(domain.AllowList(nil), ids...)
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// SetFilteredCareWorkers replaces the care-worker allow-list.
func (s *Store) SetFilteredCareWorkers(ids []string) {
	s.mu.Lock()
	s.sel.CareWorkerIDs = append(domain.AllowList(nil), ids...)
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// SetFilteredOfficeStaff replaces the office-staff allow-list.
func (s *Store) SetFilteredOfficeStaff(ids []string) {
	s.mu.Lock()
	s.sel.OfficeStaffIDs = append(domain.AllowList(nil), ids...)
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// SetFilteredEventTypes replaces the event-type allow-list.
func (s *Store) SetFilteredEventTypes(types []string) {
	s.mu.Lock()
	s.sel.EventTypes = append([]string(nil), types...)
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// Selection returns the current allow-lists.
func (s *Store) Selection() domain.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// OpenCreate opens the creation dialog, displacing any open dialog.
func (s *Store) OpenCreate() {
	s.mu.Lock()
	s.dialog = Dialog{IsOpen: true, Mode: DialogCreate}
	s.mu.Unlock()
}

// OpenEdit opens the edit dialog for the given event, displacing any open
// dialog.
func (s *Store) OpenEdit(ev domain.Event) {
	s.mu.Lock()
	evCopy := ev
	s.dialog = Dialog{IsOpen: true, Mode: DialogEdit, SelectedEventID: ev.ID, SelectedEvent: &evCopy}
	s.mu.Unlock()
}

// CloseDialog resets the dialog to its initial state.
func (s *Store) CloseDialog() {
	s.mu.Lock()
	s.dialog = Dialog{}
	s.mu.Unlock()
}

// Dialog returns the current dialog state.
func (s *Store) Dialog() Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialog
}

// SetLastError records an ingestion failure without touching the cached
// events; a later successful refresh clears it via ReplaceAll.
func (s *Store) SetLastError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

// LastError returns the most recent ingestion error, or "".
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe registers a change listener. The channel receives a best-effort
// tick after every mutation that can change the filtered view.
func (s *Store) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a change listener.
func (s *Store) Unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Store) recomputeLocked() {
	s.filtered = domain.VisibleEvents(s.events, s.sel, s.mode)
}
