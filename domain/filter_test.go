package domain

import (
	"reflect"
	"testing"
)

func filterFixture() []Event {
	return []Event{
		{ID: "e1", ClientID: "c1", CareWorker: Participant{ID: "w1"}},
		{ID: "e2", ClientID: "c2", CareWorker: Participant{ID: "w2"}},
		{ID: "e3", ClientID: "c1", CareWorker: Participant{ID: "w3"}},
		{ID: "e4", ClientID: "c3", CareWorker: Participant{ID: "w1"}},
	}
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestVisibleEventsByClient(t *testing.T) {
	sel := Selection{ClientIDs: AllowList{"c1"}}
	got := ids(VisibleEvents(filterFixture(), sel, ModeClients))
	want := []string{"e1", "e3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestVisibleEventsPreservesOrder(t *testing.T) {
	sel := Selection{CareWorkerIDs: AllowList{"w1", "w2"}}
	got := ids(VisibleEvents(filterFixture(), sel, ModeCareWorkers))
	want := []string{"e1", "e2", "e4"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestVisibleEventsEmptyListMeansUnrestricted(t *testing.T) {
	events := filterFixture()
	sel := Selection{
		ClientIDs:      Unrestricted,
		CareWorkerIDs:  AllowList{},
		OfficeStaffIDs: nil,
	}
	for _, mode := range []SidebarMode{ModeClients, ModeCareWorkers, ModeOfficeStaff} {
		got := VisibleEvents(events, sel, mode)
		if len(got) != len(events) {
			t.Fatalf("mode %s: expected all %d events, got %d", mode, len(events), len(got))
		}
	}
}

func TestVisibleEventsIdempotent(t *testing.T) {
	sel := Selection{ClientIDs: AllowList{"c1", "c3"}}
	once := VisibleEvents(filterFixture(), sel, ModeClients)
	twice := VisibleEvents(once, sel, ModeClients)
	if !reflect.DeepEqual(ids(once), ids(twice)) {
		t.Fatalf("filter not idempotent: %v vs %v", ids(once), ids(twice))
	}
}

func TestVisibleEventsMonotonicUnderLargerAllowList(t *testing.T) {
	events := filterFixture()
	small := VisibleEvents(events, Selection{ClientIDs: AllowList{"c1"}}, ModeClients)
	large := VisibleEvents(events, Selection{ClientIDs: AllowList{"c1", "c2"}}, ModeClients)

	if len(large) < len(small) {
		t.Fatalf("enlarging the allow-list removed events: %d -> %d", len(small), len(large))
	}
	seen := make(map[string]bool, len(large))
	for _, ev := range large {
		seen[ev.ID] = true
	}
	for _, ev := range small {
		if !seen[ev.ID] {
			t.Fatalf("event %s lost after enlarging allow-list", ev.ID)
		}
	}
}

func TestVisibleEventsFallsBackToSnapshotClientID(t *testing.T) {
	events := []Event{{ID: "e1", Client: Participant{ID: "c9"}}}
	got := VisibleEvents(events, Selection{ClientIDs: AllowList{"c9"}}, ModeClients)
	if len(got) != 1 {
		t.Fatalf("expected snapshot client id to match, got %d events", len(got))
	}
}
