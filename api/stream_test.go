package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"careplan-api/domain"
)

func TestStreamSchedulesSendsSnapshot(t *testing.T) {
	e := echo.New()
	deps := newTestDeps(&mockStore{})
	day := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	deps.Schedules.Store("a1").ReplaceAll([]domain.Event{seedEvent("s1", "c1", day)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/schedules/stream?agencyId=a1", nil).WithContext(ctx)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := streamSchedules(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", got)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") || !strings.Contains(body, `"id":"s1"`) {
		t.Fatalf("unexpected stream payload: %q", body)
	}
}

func TestStreamSchedulesTokenQueryParam(t *testing.T) {
	e := echo.New()
	deps := newTestDeps(&mockStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/schedules/stream?agencyId=a1&token=abc", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := streamSchedules(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the token param to authenticate, got %d", rec.Code)
	}
}

func TestStreamSchedulesMissingAgency(t *testing.T) {
	e := echo.New()
	deps := newTestDeps(&mockStore{})
	req := httptest.NewRequest(http.MethodGet, "/api/schedules/stream", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := streamSchedules(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}
