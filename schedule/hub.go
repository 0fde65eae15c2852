package schedule

import (
	"sort"
	"sync"

	"careplan-api/domain"
)

// Hub owns one Store per agency plus the agency's client directory. Stores
// are created lazily on first access and never torn down; an agency's state
// survives for the lifetime of the process.
type Hub struct {
	mu      sync.RWMutex
	stores  map[string]*Store
	clients map[string]map[string]domain.Participant
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		stores:  make(map[string]*Store),
		clients: make(map[string]map[string]domain.Participant),
	}
}

// Store returns the schedule store for the agency, creating it on demand.
func (h *Hub) Store(agencyID string) *Store {
	h.mu.RLock()
	st, ok := h.stores[agencyID]
	h.mu.RUnlock()
	if ok {
		return st
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok = h.stores[agencyID]; ok {
		return st
	}
	st = NewStore(agencyID)
	h.stores[agencyID] = st
	return st
}

// Agencies lists the agencies with live stores, sorted for deterministic
// refresh order.
func (h *Hub) Agencies() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.stores))
	for id := range h.stores {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetClients replaces the agency's client directory.
func (h *Hub) SetClients(agencyID string, clients []domain.Participant) {
	dir := make(map[string]domain.Participant, len(clients))
	for _, c := range clients {
		dir[c.ID] = c
	}
	h.mu.Lock()
	h.clients[agencyID] = dir
	h.mu.Unlock()
}

// Client looks up one client in the agency's directory.
func (h *Hub) Client(agencyID, clientID string) (domain.Participant, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[agencyID][clientID]
	return c, ok
}
