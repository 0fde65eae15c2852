package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"careplan-api/domain"
	"careplan-api/planbook"
	"careplan-api/schedule"
	"careplan-api/workflow"
)

// Deps carries everything the handlers need. Notifier may be nil when no
// broker is configured.
type Deps struct {
	Store     Storage
	Auth      Authenticator
	Schedules *schedule.Hub
	Templates *planbook.Store
	Applier   *workflow.Applier
	Refresher Refresher
	Deduper   Deduper
	Notifier  Notifier
	Logger    *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}

	e.GET("/api/schedules", getSchedules(d))
	e.GET("/api/schedules/filtered", getFilteredSchedules(d))
	e.GET("/api/schedules/stream", streamSchedules(d))
	e.GET("/api/schedules/ical", getSchedulesICal(d))
	e.POST("/api/schedules", postSchedule(d))
	e.PUT("/api/schedules/filters", putFilters(d))
	e.PUT("/api/schedules/:id", putSchedule(d))
	e.DELETE("/api/schedules/:id", deleteSchedule(d))
	e.POST("/api/schedules/refresh", postRefresh(d))

	e.GET("/api/templates", getTemplates(d))
	e.POST("/api/templates", postTemplate(d))
	e.POST("/api/templates/apply", applyTemplate(d))
	e.PUT("/api/templates/:id", putTemplate(d))
	e.DELETE("/api/templates/:id", deleteTemplate(d))
	e.POST("/api/templates/:id/activate", activateTemplate(d))

	e.GET("/healthz", healthz())

	initChangeSender(d.Store, d.Logger)
}

type schedulesResponse struct {
	Schedules []domain.EventRecord `json:"schedules"`
	LastError string               `json:"lastError,omitempty"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func agencyIDParam(c echo.Context) (string, bool) {
	agencyID := c.QueryParam("agencyId")
	return agencyID, agencyID != ""
}

func getSchedules(d Deps) echo.HandlerFunc {
	return listSchedules(d, false)
}

func getFilteredSchedules(d Deps) echo.HandlerFunc {
	return listSchedules(d, true)
}

func listSchedules(d Deps, filtered bool) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newScheduleRequestMetrics(ctx, d.Logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		metrics.SetFiltered(filtered)

		authStart := time.Now()
		_, authErr := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		agencyID := c.QueryParam("agencyId")
		if agencyID == "" {
			metrics.SetErrorStage("missing_agency")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
			return err
		}

		fetchStart := time.Now()
		store := d.Schedules.Store(agencyID)
		var events []domain.Event
		if filtered {
			events = store.Filtered()
		} else {
			events = store.Events()
		}
		metrics.ObserveFetch(time.Since(fetchStart))
		metrics.SetEventsReturned(len(events))

		resp := schedulesResponse{
			Schedules: make([]domain.EventRecord, 0, len(events)),
			LastError: store.LastError(),
		}
		for _, ev := range events {
			resp.Schedules = append(resp.Schedules, domain.Denormalize(ev))
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postSchedule(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req scheduleMutation
		if err := decodeBody(c, postScheduleMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.AgencyID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}

		rec := mutationToRecord(req)
		rec.ID = uuid.NewString()
		if client, ok := d.Schedules.Client(req.AgencyID, req.ClientID); ok {
			rec.Client = client
		}
		ev := domain.Normalize(rec)
		rec = domain.Denormalize(ev)

		if err := d.Store.UpsertEvent(ctx, req.AgencyID, rec); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to persist schedule"})
		}
		d.Schedules.Store(req.AgencyID).Add(ev)

		dispatchChanges(d.Store, d.Logger, changeJob{
			agencyID: req.AgencyID,
			userID:   userID,
			changes:  []domain.Change{newChange("schedule", "created", rec)},
		})
		d.Notifier.ScheduleCreated(req.AgencyID, rec)

		return c.JSON(http.StatusCreated, rec)
	}
}

func putSchedule(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req scheduleMutation
		if err := decodeBody(c, postScheduleMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.AgencyID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}

		rec := mutationToRecord(req)
		rec.ID = c.Param("id")
		if client, ok := d.Schedules.Client(req.AgencyID, req.ClientID); ok {
			rec.Client = client
		}
		ev := domain.Normalize(rec)
		rec = domain.Denormalize(ev)

		if err := d.Schedules.Store(req.AgencyID).Update(ev); err != nil {
			if errors.Is(err, schedule.ErrNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: "schedule not found"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		if err := d.Store.UpsertEvent(ctx, req.AgencyID, rec); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to persist schedule"})
		}

		dispatchChanges(d.Store, d.Logger, changeJob{
			agencyID: req.AgencyID,
			userID:   userID,
			changes:  []domain.Change{newChange("schedule", "updated", rec)},
		})
		d.Notifier.ScheduleUpdated(req.AgencyID, rec)

		return c.JSON(http.StatusOK, rec)
	}
}

func deleteSchedule(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		agencyID, ok := agencyIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}

		eventID := c.Param("id")
		if err := d.Schedules.Store(agencyID).Delete(eventID); err != nil {
			if errors.Is(err, schedule.ErrNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: "schedule not found"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		if err := d.Store.DeleteEvent(ctx, agencyID, eventID); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to delete schedule"})
		}

		dispatchChanges(d.Store, d.Logger, changeJob{
			agencyID: agencyID,
			userID:   userID,
			changes:  []domain.Change{newChange("schedule", "deleted", domain.EventRecord{ID: eventID})},
		})
		d.Notifier.ScheduleDeleted(agencyID, eventID)

		return c.NoContent(http.StatusNoContent)
	}
}

func putFilters(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req filtersRequest
		if err := decodeBody(c, putFiltersMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.AgencyID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}

		store := d.Schedules.Store(req.AgencyID)
		if req.SidebarMode != "" {
			mode := domain.SidebarMode(req.SidebarMode)
			switch mode {
			case domain.ModeClients, domain.ModeOfficeStaff, domain.ModeCareWorkers:
				store.SetSidebarMode(mode)
			default:
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown sidebar mode"})
			}
		}
		store.SetFilteredClients(req.ClientIDs)
		store.SetFilteredCareWorkers(req.CareWorkerIDs)
		store.SetFilteredOfficeStaff(req.OfficeStaffIDs)
		store.SetFilteredEventTypes(req.EventTypes)

		return c.JSON(http.StatusOK, filtersRequest{
			AgencyID:       req.AgencyID,
			SidebarMode:    string(store.SidebarMode()),
			ClientIDs:      store.Selection().ClientIDs,
			CareWorkerIDs:  store.Selection().CareWorkerIDs,
			OfficeStaffIDs: store.Selection().OfficeStaffIDs,
			EventTypes:     store.Selection().EventTypes,
		})
	}
}

func postRefresh(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		agencyID, ok := agencyIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}

		if err := d.Refresher.Refresh(ctx, agencyID); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		}
		store := d.Schedules.Store(agencyID)
		return c.JSON(http.StatusOK, schedulesRefreshedResponse{
			Events:    len(store.Events()),
			Templates: len(d.Templates.List(agencyID)),
		})
	}
}

type schedulesRefreshedResponse struct {
	Events    int `json:"events"`
	Templates int `json:"templates"`
}

// decodeBody reads a size-capped JSON request body, rejecting unknown fields.
func decodeBody(c echo.Context, maxSize int64, v any) error {
	lr := io.LimitReader(c.Request().Body, maxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func mutationToRecord(req scheduleMutation) domain.EventRecord {
	rec := domain.EventRecord{
		AgencyID:  req.AgencyID,
		Title:     req.Title,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		ClientID:  req.ClientID,
		Type:      req.Type,
		Status:    req.Status,
		Notes:     req.Notes,
		Color:     req.Color,
	}
	if req.Date != "" && req.StartTime != "" {
		rec.Start = req.Date + "T" + req.StartTime + ":00Z"
	}
	if req.Date != "" && req.EndTime != "" {
		rec.End = req.Date + "T" + req.EndTime + ":00Z"
	}
	if req.UserID != "" {
		rec.User = domain.Participant{ID: req.UserID}
	}
	return rec
}

func newChange(entityType, changeType string, data any) domain.Change {
	raw, err := sonic.Marshal(data)
	if err != nil {
		raw = nil
	}
	key := uuid.NewString()
	return domain.Change{
		ID:             key,
		IdempotencyKey: key,
		EntityType:     entityType,
		Type:           changeType,
		Data:           raw,
		Timestamp:      nextTimestamp(),
	}
}
