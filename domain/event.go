package domain

import "time"

// EventType classifies a scheduled visit. The set is open ended; unknown
// values coming from the wire are kept as-is.
type EventType string

const (
	TypeAppointment   EventType = "APPOINTMENT"
	TypeHomeVisit     EventType = "HOME_VISIT"
	TypeMedication    EventType = "MEDICATION"
	TypeTherapy       EventType = "THERAPY"
	TypeShopping      EventType = "SHOPPING"
	TypeWeeklyCheckup EventType = "WEEKLY_CHECKUP"
	TypeEmergency     EventType = "EMERGENCY"
	TypeRoutine       EventType = "ROUTINE"
	TypeOther         EventType = "OTHER"
)

// EventStatus is the lifecycle state of a scheduled visit.
type EventStatus string

const (
	StatusPending   EventStatus = "PENDING"
	StatusConfirmed EventStatus = "CONFIRMED"
	StatusCompleted EventStatus = "COMPLETED"
	StatusCanceled  EventStatus = "CANCELED"
	StatusScheduled EventStatus = "SCHEDULED"
)

// Participant is a denormalized snapshot of a client or care worker taken at
// event creation time. It is display data, not a live reference; it may go
// stale when the underlying user record is renamed.
type Participant struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

// Event is the canonical in-memory representation of a scheduled visit.
type Event struct {
	ID         string
	AgencyID   string
	Title      string
	Date       time.Time
	Start      time.Time
	End        time.Time
	StartTime  string // HH:MM, authoritative for display
	EndTime    string
	ClientID   string
	Type       EventType
	Status     EventStatus
	Notes      string
	Color      string
	Client     Participant
	CareWorker Participant
}

var typeColors = map[EventType]string{
	TypeAppointment:   "#4f6bed",
	TypeHomeVisit:     "#2e9e5b",
	TypeMedication:    "#b4009e",
	TypeTherapy:       "#00b7c3",
	TypeShopping:      "#8764b8",
	TypeWeeklyCheckup: "#038387",
	TypeEmergency:     "#d13438",
	TypeRoutine:       "#986f0b",
	TypeOther:         "#69797e",
}

// ColorFor returns the display color derived from the event type. Unknown
// types share the OTHER color.
func ColorFor(t EventType) string {
	if c, ok := typeColors[t]; ok {
		return c
	}
	return typeColors[TypeOther]
}

// SameCalendarDay reports whether two instants fall on the same local
// calendar day.
func SameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
