package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"careplan-api/domain"
	"careplan-api/planbook"
	"careplan-api/workflow"
)

type templatesResponse struct {
	Templates   []domain.Template `json:"templates"`
	CurrentID   string            `json:"currentId,omitempty"`
	LastApplied *planbook.Applied `json:"lastApplied,omitempty"`
}

func getTemplates(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		agencyID, ok := agencyIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}

		resp := templatesResponse{Templates: d.Templates.List(agencyID)}
		if current, ok := d.Templates.Current(agencyID); ok {
			resp.CurrentID = current.ID
		}
		if applied, ok := d.Templates.LastApplied(agencyID); ok {
			resp.LastApplied = &applied
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func postTemplate(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var tpl domain.Template
		if err := decodeBody(c, postTemplateMaxSize, &tpl); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if tpl.AgencyID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}
		if tpl.ID == "" {
			tpl.ID = uuid.NewString()
		}
		for i := range tpl.Visits {
			if tpl.Visits[i].ID == "" {
				tpl.Visits[i].ID = uuid.NewString()
			}
		}

		if err := d.Store.UpsertTemplate(ctx, tpl.AgencyID, tpl); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to persist template"})
		}
		d.Templates.Create(tpl.AgencyID, tpl)

		dispatchChanges(d.Store, d.Logger, changeJob{
			agencyID: tpl.AgencyID,
			userID:   userID,
			changes:  []domain.Change{newChange("template", "created", tpl)},
		})

		return c.JSON(http.StatusCreated, tpl)
	}
}

func putTemplate(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var tpl domain.Template
		if err := decodeBody(c, postTemplateMaxSize, &tpl); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if tpl.AgencyID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}
		tpl.ID = c.Param("id")
		for i := range tpl.Visits {
			if tpl.Visits[i].ID == "" {
				tpl.Visits[i].ID = uuid.NewString()
			}
		}

		if err := d.Templates.Update(tpl.AgencyID, tpl); err != nil {
			if errors.Is(err, planbook.ErrNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: "template not found"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		if err := d.Store.UpsertTemplate(ctx, tpl.AgencyID, tpl); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to persist template"})
		}

		dispatchChanges(d.Store, d.Logger, changeJob{
			agencyID: tpl.AgencyID,
			userID:   userID,
			changes:  []domain.Change{newChange("template", "updated", tpl)},
		})

		return c.JSON(http.StatusOK, tpl)
	}
}

func deleteTemplate(d Deps) echo.HandlerFunc {
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

		templateID := c.Param("id")
		if err := d.Templates.Delete(agencyID, templateID); err != nil {
			if errors.Is(err, planbook.ErrNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: "template not found"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		if err := d.Store.DeleteTemplate(ctx, agencyID, templateID); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to delete template"})
		}

		dispatchChanges(d.Store, d.Logger, changeJob{
			agencyID: agencyID,
			userID:   userID,
			changes:  []domain.Change{newChange("template", "deleted", domain.Template{ID: templateID})},
		})

		return c.NoContent(http.StatusNoContent)
	}
}

func activateTemplate(d Deps) echo.HandlerFunc {
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

		templateID := c.Param("id")
		if err := d.Templates.Activate(agencyID, templateID); err != nil {
			if errors.Is(err, planbook.ErrNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: "template not found"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}

		// Activation resets every other template, so the whole set is
		// written back.
		templates := d.Templates.List(agencyID)
		for _, tpl := range templates {
			if err := d.Store.UpsertTemplate(ctx, agencyID, tpl); err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to persist activation"})
			}
		}

		dispatchChanges(d.Store, d.Logger, changeJob{
			agencyID: agencyID,
			userID:   userID,
			changes:  []domain.Change{newChange("template", "activated", domain.Template{ID: templateID})},
		})

		return c.JSON(http.StatusOK, templatesResponse{Templates: templates})
	}
}

func applyTemplate(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req applyRequest
		if err := decodeBody(c, postTemplateMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.AgencyID == "" || req.TemplateID == "" || req.ClientID == "" || req.Date == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId, templateId, clientId and date are required"})
		}

		key := req.IdempotencyKey
		if key == "" {
			key = uuid.NewString()
		}
		if d.Deduper != nil {
			added, dedupeErr := d.Deduper.Add(ctx, userID, key)
			if dedupeErr != nil {
				c.Logger().Error(dedupeErr)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "idempotency check failed"})
			}
			if !added {
				return c.JSON(http.StatusOK, workflow.Result{Success: true, EventsAdded: 0})
			}
		}

		// Ids of events about to be displaced, so storage can be pruned
		// after the in-memory replacement succeeds.
		displaced := displacedEventIDs(d, req.AgencyID, req.Date)

		result, applyErr := d.Applier.Apply(ctx, workflow.Request{
			AgencyID:   req.AgencyID,
			TemplateID: req.TemplateID,
			ClientID:   req.ClientID,
			Date:       req.Date,
		})
		if applyErr != nil {
			if d.Deduper != nil {
				if rmErr := d.Deduper.Remove(ctx, userID, key); rmErr != nil {
					c.Logger().Error(rmErr)
				}
			}
			switch {
			case errors.Is(applyErr, workflow.ErrTemplateNotFound),
				errors.Is(applyErr, workflow.ErrClientNotFound):
				return c.JSON(http.StatusNotFound, errorResponse{Error: applyErr.Error()})
			default:
				return c.JSON(http.StatusBadRequest, errorResponse{Error: applyErr.Error()})
			}
		}

		changes := make([]domain.Change, 0, len(result.Events)+1)
		for _, id := range displaced {
			if err := d.Store.DeleteEvent(ctx, req.AgencyID, id); err != nil {
				c.Logger().Error(err)
			}
		}
		for _, ev := range result.Events {
			rec := domain.Denormalize(ev)
			if err := d.Store.UpsertEvent(ctx, req.AgencyID, rec); err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to persist expanded events"})
			}
			changes = append(changes, newChange("schedule", "created", rec))
		}
		changes = append(changes, newChange("template", "applied", req))

		dispatchChanges(d.Store, d.Logger, changeJob{
			agencyID: req.AgencyID,
			userID:   userID,
			changes:  changes,
		})
		d.Notifier.TemplateApplied(req.AgencyID, req.TemplateID, req.Date, result.EventsAdded)

		return c.JSON(http.StatusOK, result)
	}
}

// displacedEventIDs lists the events currently occupying the target day.
func displacedEventIDs(d Deps, agencyID, date string) []string {
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil
	}
	var ids []string
	for _, ev := range d.Schedules.Store(agencyID).Events() {
		if domain.SameCalendarDay(ev.Start, day) {
			ids = append(ids, ev.ID)
		}
	}
	return ids
}
