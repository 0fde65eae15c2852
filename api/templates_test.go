package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"careplan-api/domain"
	"careplan-api/workflow"
)

type mockDeduper struct {
	added   []string
	removed []string
	dup     bool
}

func (m *mockDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	m.added = append(m.added, key)
	return !m.dup, nil
}

func (m *mockDeduper) Remove(ctx context.Context, userID, key string) error {
	m.removed = append(m.removed, key)
	return nil
}

func weekTemplate(id string) domain.Template {
	return domain.Template{
		ID:       id,
		AgencyID: "a1",
		Name:     "Standard week",
		Visits: []domain.TemplateVisit{
			{ID: "v1", Day: domain.Monday, StartTime: "09:00", EndTime: "10:00", CareWorkerName: "Jane Doe"},
			{ID: "v2", Day: domain.Wednesday, StartTime: "14:00", EndTime: "15:00", CareWorkerName: "Jane Doe"},
		},
	}
}

func TestGetTemplates(t *testing.T) {
	e := echo.New()
	deps := newTestDeps(&mockStore{})
	deps.Templates.Create("a1", weekTemplate("t1"))
	deps.Templates.RecordApplied("a1", "t1", "2024-06-10")

	req := httptest.NewRequest(http.MethodGet, "/api/templates?agencyId=a1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getTemplates(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp templatesResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Templates) != 1 || resp.Templates[0].ID != "t1" {
		t.Fatalf("unexpected templates: %#v", resp.Templates)
	}
	if resp.LastApplied == nil || resp.LastApplied.Date != "2024-06-10" {
		t.Fatalf("unexpected last applied: %#v", resp.LastApplied)
	}
}

func TestPostTemplate(t *testing.T) {
	e := echo.New()
	ms := &mockStore{}
	deps := newTestDeps(ms)

	body := `{"agencyId":"a1","name":"Standard week","isActive":false,"visits":[{"day":"MONDAY","startTime":"09:00","endTime":"10:00","careWorkerName":"Jane Doe"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/templates", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := postTemplate(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	var created domain.Template
	if err := sonic.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if created.ID == "" || created.Visits[0].ID == "" {
		t.Fatalf("expected generated ids, got %#v", created)
	}
	if len(ms.upsertedTpls) != 1 {
		t.Fatalf("expected 1 persisted template, got %d", len(ms.upsertedTpls))
	}
	if got := deps.Templates.List("a1"); len(got) != 1 {
		t.Fatalf("expected template in store, got %#v", got)
	}
}

func TestPutTemplateNotFound(t *testing.T) {
	e := echo.New()
	ms := &mockStore{}
	deps := newTestDeps(ms)

	body := `{"agencyId":"a1","name":"Renamed","isActive":false,"visits":[]}`
	req := httptest.NewRequest(http.MethodPut, "/api/templates/ghost", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("ghost")

	if err := putTemplate(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	if len(ms.upsertedTpls) != 0 {
		t.Fatalf("expected no persistence for unknown id, got %d", len(ms.upsertedTpls))
	}
}

func TestDeleteTemplate(t *testing.T) {
	e := echo.New()
	ms := &mockStore{}
	deps := newTestDeps(ms)
	deps.Templates.Create("a1", weekTemplate("t1"))

	req := httptest.NewRequest(http.MethodDelete, "/api/templates/t1?agencyId=a1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := deleteTemplate(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	if got := deps.Templates.List("a1"); len(got) != 0 {
		t.Fatalf("expected empty template store, got %#v", got)
	}
	if len(ms.deletedTpls) != 1 || ms.deletedTpls[0] != "t1" {
		t.Fatalf("expected t1 deleted from storage, got %#v", ms.deletedTpls)
	}
}

func TestActivateTemplate(t *testing.T) {
	e := echo.New()
	ms := &mockStore{}
	deps := newTestDeps(ms)
	first := weekTemplate("t1")
	first.IsActive = true
	deps.Templates.Create("a1", first)
	deps.Templates.Create("a1", weekTemplate("t2"))

	req := httptest.NewRequest(http.MethodPost, "/api/templates/t2/activate?agencyId=a1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("t2")

	if err := activateTemplate(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	for _, tpl := range deps.Templates.List("a1") {
		if tpl.IsActive != (tpl.ID == "t2") {
			t.Fatalf("expected only t2 active, got %#v", tpl)
		}
	}
	if len(ms.upsertedTpls) != 2 {
		t.Fatalf("expected the whole set persisted, got %d", len(ms.upsertedTpls))
	}
}

func TestApplyTemplate(t *testing.T) {
	e := echo.New()
	ms := &mockStore{}
	deps := newTestDeps(ms)
	deduper := &mockDeduper{}
	deps.Deduper = deduper
	deps.Templates.Create("a1", weekTemplate("t1"))
	deps.Schedules.SetClients("a1", []domain.Participant{{ID: "c1", FullName: "John Smith"}})

	day := time.Date(2024, 6, 10, 9, 0, 0, 0, time.Local)
	deps.Schedules.Store("a1").ReplaceAll([]domain.Event{seedEvent("old", "c9", day)})

	body := `{"agencyId":"a1","templateId":"t1","clientId":"c1","date":"2024-06-10","idempotencyKey":"apply-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/templates/apply", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := applyTemplate(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var result workflow.Result
	if err := sonic.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !result.Success || result.EventsAdded != 2 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(deduper.added) != 1 || deduper.added[0] != "apply-1" {
		t.Fatalf("expected idempotency key recorded, got %#v", deduper.added)
	}
	if len(ms.deletedEvents) != 1 || ms.deletedEvents[0] != "old" {
		t.Fatalf("expected displaced event pruned from storage, got %#v", ms.deletedEvents)
	}
	if len(ms.upsertedEvents) != 2 {
		t.Fatalf("expected expanded events persisted, got %d", len(ms.upsertedEvents))
	}
	events := deps.Schedules.Store("a1").Events()
	if len(events) != 2 {
		t.Fatalf("expected the day replaced, got %#v", events)
	}
	for _, ev := range events {
		if ev.Client.FullName != "John Smith" || ev.CareWorker.FullName != "Jane Doe" {
			t.Fatalf("unexpected participants: %#v", ev)
		}
	}
}

func TestApplyTemplateDuplicate(t *testing.T) {
	e := echo.New()
	ms := &mockStore{}
	deps := newTestDeps(ms)
	deps.Deduper = &mockDeduper{dup: true}
	deps.Templates.Create("a1", weekTemplate("t1"))
	deps.Schedules.SetClients("a1", []domain.Participant{{ID: "c1"}})

	body := `{"agencyId":"a1","templateId":"t1","clientId":"c1","date":"2024-06-10","idempotencyKey":"apply-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/templates/apply", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := applyTemplate(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var result workflow.Result
	if err := sonic.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !result.Success || result.EventsAdded != 0 {
		t.Fatalf("expected a no-op replay, got %#v", result)
	}
	if len(ms.upsertedEvents) != 0 {
		t.Fatalf("expected no persistence on replay, got %d", len(ms.upsertedEvents))
	}
}

func TestApplyTemplateUnknownTemplate(t *testing.T) {
	e := echo.New()
	ms := &mockStore{}
	deps := newTestDeps(ms)
	deduper := &mockDeduper{}
	deps.Deduper = deduper
	deps.Schedules.SetClients("a1", []domain.Participant{{ID: "c1"}})

	body := `{"agencyId":"a1","templateId":"ghost","clientId":"c1","date":"2024-06-10","idempotencyKey":"apply-2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/templates/apply", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := applyTemplate(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	if len(deduper.removed) != 1 || deduper.removed[0] != "apply-2" {
		t.Fatalf("expected idempotency key released, got %#v", deduper.removed)
	}
}

func TestApplyTemplateMalformedVisitTime(t *testing.T) {
	e := echo.New()
	ms := &mockStore{}
	deps := newTestDeps(ms)
	broken := weekTemplate("t1")
	broken.Visits[1].StartTime = "2pm"
	deps.Templates.Create("a1", broken)
	deps.Schedules.SetClients("a1", []domain.Participant{{ID: "c1"}})

	day := time.Date(2024, 6, 10, 9, 0, 0, 0, time.Local)
	deps.Schedules.Store("a1").ReplaceAll([]domain.Event{seedEvent("keep", "c1", day)})

	body := `{"agencyId":"a1","templateId":"t1","clientId":"c1","date":"2024-06-10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/templates/apply", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := applyTemplate(deps)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	events := deps.Schedules.Store("a1").Events()
	if len(events) != 1 || events[0].ID != "keep" {
		t.Fatalf("expected schedule untouched, got %#v", events)
	}
	if len(ms.upsertedEvents) != 0 || len(ms.deletedEvents) != 0 {
		t.Fatalf("expected storage untouched, got %#v %#v", ms.upsertedEvents, ms.deletedEvents)
	}
}
