package domain

import "time"

// EventRecord is the wire shape a schedule crosses the service boundary in:
// ingestion payloads from storage, REST responses, and change-feed data. Any
// date field may arrive as a string in several formats or be absent.
type EventRecord struct {
	ID        string      `json:"id"`
	AgencyID  string      `json:"agencyId,omitempty"`
	Title     string      `json:"title,omitempty"`
	Start     string      `json:"start"`
	End       string      `json:"end"`
	Date      string      `json:"date"`
	StartTime string      `json:"startTime"`
	EndTime   string      `json:"endTime"`
	ClientID  string      `json:"clientId"`
	Type      string      `json:"type"`
	Status    string      `json:"status"`
	Notes     string      `json:"notes,omitempty"`
	Color     string      `json:"color,omitempty"`
	User      Participant `json:"user"`
	Client    Participant `json:"client"`
}

// wireTimeLayouts are tried in order when coercing a wire date string.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// coerceTime parses a wire date string, substituting the fallback for
// missing or unparseable input. Bad dates are repaired, never reported.
func coerceTime(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return fallback
}

// Normalize converts a wire record into the canonical in-memory event.
//
// Temporal fields follow a silent-repair policy: a missing or malformed
// start or end becomes the current instant, a missing date becomes the
// calendar day of start, and missing HH:MM display times are derived from
// the timestamps. No error is ever returned for bad dates.
func Normalize(rec EventRecord) Event {
	now := time.Now()
	start := coerceTime(rec.Start, now)
	end := coerceTime(rec.End, now)
	date := coerceTime(rec.Date, truncateToDay(start))

	startTime := rec.StartTime
	if startTime == "" {
		startTime = start.Format("15:04")
	}
	endTime := rec.EndTime
	if endTime == "" {
		endTime = end.Format("15:04")
	}

	typ := EventType(rec.Type)
	if typ == "" {
		typ = TypeOther
	}
	color := rec.Color
	if color == "" {
		color = ColorFor(typ)
	}

	return Event{
		ID:         rec.ID,
		AgencyID:   rec.AgencyID,
		Title:      rec.Title,
		Date:       date,
		Start:      start,
		End:        end,
		StartTime:  startTime,
		EndTime:    endTime,
		ClientID:   rec.ClientID,
		Type:       typ,
		Status:     EventStatus(rec.Status),
		Notes:      rec.Notes,
		Color:      color,
		Client:     rec.Client,
		CareWorker: rec.User,
	}
}

// Denormalize converts an event back to its wire shape. Timestamps are
// rendered as RFC 3339 with nanoseconds so that Normalize(Denormalize(e))
// reproduces the date fields of a valid event exactly.
func Denormalize(ev Event) EventRecord {
	return EventRecord{
		ID:        ev.ID,
		AgencyID:  ev.AgencyID,
		Title:     ev.Title,
		Start:     ev.Start.Format(time.RFC3339Nano),
		End:       ev.End.Format(time.RFC3339Nano),
		Date:      ev.Date.Format(time.RFC3339Nano),
		StartTime: ev.StartTime,
		EndTime:   ev.EndTime,
		ClientID:  ev.ClientID,
		Type:      string(ev.Type),
		Status:    string(ev.Status),
		Notes:     ev.Notes,
		Color:     ev.Color,
		User:      ev.CareWorker,
		Client:    ev.Client,
	}
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
