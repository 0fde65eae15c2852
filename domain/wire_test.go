package domain

import (
	"testing"
	"time"
)

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	start := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	ev := Event{
		ID:        "e1",
		AgencyID:  "a1",
		Date:      time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Start:     start,
		End:       start.Add(time.Hour),
		StartTime: "09:00",
		EndTime:   "10:00",
		ClientID:  "c1",
		Type:      TypeHomeVisit,
		Status:    StatusScheduled,
		Color:     ColorFor(TypeHomeVisit),
		Client:    Participant{ID: "c1", FullName: "John Smith"},
	}

	got := Normalize(Denormalize(ev))

	if !got.Start.Equal(ev.Start) {
		t.Fatalf("start changed: %v != %v", got.Start, ev.Start)
	}
	if !got.End.Equal(ev.End) {
		t.Fatalf("end changed: %v != %v", got.End, ev.End)
	}
	if !got.Date.Equal(ev.Date) {
		t.Fatalf("date changed: %v != %v", got.Date, ev.Date)
	}
	if got.StartTime != "09:00" || got.EndTime != "10:00" {
		t.Fatalf("display times changed: %q %q", got.StartTime, got.EndTime)
	}
}

func TestNormalizeRepairsBadDates(t *testing.T) {
	before := time.Now()
	ev := Normalize(EventRecord{ID: "e1", Start: "not-a-date", End: "", Date: "also bad"})
	after := time.Now()

	if ev.Start.Before(before) || ev.Start.After(after) {
		t.Fatalf("expected start repaired to now, got %v", ev.Start)
	}
	if ev.End.Before(before) || ev.End.After(after) {
		t.Fatalf("expected end repaired to now, got %v", ev.End)
	}
	if !SameCalendarDay(ev.Date, ev.Start) {
		t.Fatalf("expected date repaired to start's day, got %v", ev.Date)
	}
}

func TestNormalizeDerivesDisplayFields(t *testing.T) {
	ev := Normalize(EventRecord{
		ID:    "e1",
		Start: "2024-06-10T14:30:00Z",
		End:   "2024-06-10T15:00:00Z",
		Date:  "2024-06-10",
		Type:  "MEDICATION",
	})

	if ev.StartTime != "14:30" || ev.EndTime != "15:00" {
		t.Fatalf("unexpected display times: %q %q", ev.StartTime, ev.EndTime)
	}
	if ev.Color != ColorFor(TypeMedication) {
		t.Fatalf("expected color derived from type, got %q", ev.Color)
	}
}

func TestNormalizeKeepsUnknownType(t *testing.T) {
	ev := Normalize(EventRecord{ID: "e1", Type: "RESPITE"})
	if ev.Type != EventType("RESPITE") {
		t.Fatalf("unexpected type: %q", ev.Type)
	}
	if ev.Color != ColorFor(TypeOther) {
		t.Fatalf("expected fallback color, got %q", ev.Color)
	}
}
