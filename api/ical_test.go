package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"careplan-api/domain"
)

func TestGetSchedulesICal(t *testing.T) {
	e := echo.New()
	deps := newTestDeps(&mockStore{})
	day := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	ev := seedEvent("s1", "c1", day)
	ev.Client.FullName = "John Smith"
	ev.Notes = "Bring the care plan"
	deps.Schedules.Store("a1").ReplaceAll([]domain.Event{ev})

	req := httptest.NewRequest(http.MethodGet, "/api/schedules/ical?agencyId=a1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getSchedulesICal(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(got, "text/calendar") {
		t.Fatalf("unexpected content type: %s", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "BEGIN:VEVENT") {
		t.Fatalf("expected a calendar payload, got %q", body)
	}
	if !strings.Contains(body, "UID:s1") {
		t.Fatalf("expected the event UID, got %q", body)
	}
	if !strings.Contains(body, "John Smith") {
		t.Fatalf("expected the client name in the summary, got %q", body)
	}
}

func TestGetSchedulesICalFollowsFilters(t *testing.T) {
	e := echo.New()
	deps := newTestDeps(&mockStore{})
	day := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	store := deps.Schedules.Store("a1")
	store.ReplaceAll([]domain.Event{
		seedEvent("s1", "c1", day),
		seedEvent("s2", "c2", day),
	})
	store.SetFilteredClients([]string{"c1"})

	req := httptest.NewRequest(http.MethodGet, "/api/schedules/ical?agencyId=a1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getSchedulesICal(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "UID:s1") || strings.Contains(body, "UID:s2") {
		t.Fatalf("expected only the filtered event, got %q", body)
	}
}
