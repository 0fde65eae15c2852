package domain

// SidebarMode selects which participant dimension drives event filtering.
type SidebarMode string

const (
	ModeClients     SidebarMode = "clients"
	ModeOfficeStaff SidebarMode = "officeStaff"
	ModeCareWorkers SidebarMode = "careWorker"
)

// AllowList restricts a participant dimension to a set of ids. An empty list
// means the dimension is unrestricted, not that nothing is selected; use the
// Unrestricted sentinel at call sites to make that intent explicit.
type AllowList []string

// Unrestricted is the canonical "no filter on this dimension" value.
var Unrestricted AllowList

// Permits reports whether the list allows the given id. The empty list
// permits everything.
func (l AllowList) Permits(id string) bool {
	if len(l) == 0 {
		return true
	}
	for _, allowed := range l {
		if allowed == id {
			return true
		}
	}
	return false
}

// Selection carries the three allow-lists applied to the event list.
// EventTypes is a reserved extension point; it is carried through but not
// yet consulted.
type Selection struct {
	ClientIDs      AllowList `json:"clientIds"`
	CareWorkerIDs  AllowList `json:"careWorkerIds"`
	OfficeStaffIDs AllowList `json:"officeStaffIds"`
	EventTypes     []string  `json:"eventTypes,omitempty"`
}

// VisibleEvents computes the ordered subsequence of events visible under the
// given selection and sidebar mode. The relative order of the input is
// preserved, no event is duplicated, and the input slice is not modified.
func VisibleEvents(events []Event, sel Selection, mode SidebarMode) []Event {
	visible := make([]Event, 0, len(events))
	for _, ev := range events {
		if eventVisible(ev, sel, mode) {
			visible = append(visible, ev)
		}
	}
	return visible
}

func eventVisible(ev Event, sel Selection, mode SidebarMode) bool {
	switch mode {
	case ModeClients:
		return sel.ClientIDs.Permits(clientID(ev))
	case ModeOfficeStaff:
		return sel.OfficeStaffIDs.Permits(ev.CareWorker.ID)
	case ModeCareWorkers:
		return sel.CareWorkerIDs.Permits(ev.CareWorker.ID)
	default:
		return true
	}
}

func clientID(ev Event) string {
	if ev.ClientID != "" {
		return ev.ClientID
	}
	return ev.Client.ID
}
