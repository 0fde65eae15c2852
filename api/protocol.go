package api

const (
	postScheduleMaxSize = 64 * 1024 // 64 KiB
	putFiltersMaxSize   = 32 * 1024
	postTemplateMaxSize = 128 * 1024
)

// POST /api/schedules and PUT /api/schedules/:id request body. Dates use
// YYYY-MM-DD, display times HH:MM; start/end timestamps are derived.
type scheduleMutation struct {
	AgencyID  string `json:"agencyId"`
	ClientID  string `json:"clientId"`
	UserID    string `json:"userId"`
	Title     string `json:"title,omitempty"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	Notes     string `json:"notes,omitempty"`
	Color     string `json:"color,omitempty"`
}

// PUT /api/schedules/filters request body.
type filtersRequest struct {
	AgencyID       string   `json:"agencyId"`
	SidebarMode    string   `json:"sidebarMode"`
	ClientIDs      []string `json:"clientIds"`
	CareWorkerIDs  []string `json:"careWorkerIds"`
	OfficeStaffIDs []string `json:"officeStaffIds"`
	EventTypes     []string `json:"eventTypes,omitempty"`
}

// POST /api/templates/apply request body.
type applyRequest struct {
	AgencyID       string `json:"agencyId"`
	TemplateID     string `json:"templateId"`
	ClientID       string `json:"clientId"`
	Date           string `json:"date"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
