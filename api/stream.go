package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"careplan-api/domain"
)

// streamSchedules pushes the agency's filtered view over SSE. The initial
// snapshot is sent immediately; a new one follows every store mutation that
// can change the view. EventSource cannot set headers, so a token query
// parameter is accepted in place of the Authorization header.
func streamSchedules(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if _, err := d.Auth.UserIDFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		agencyID := c.QueryParam("agencyId")
		if agencyID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		store := d.Schedules.Store(agencyID)
		ch := store.Subscribe()
		defer store.Unsubscribe(ch)

		for {
			events := store.Filtered()
			records := make([]domain.EventRecord, 0, len(events))
			for _, ev := range events {
				records = append(records, domain.Denormalize(ev))
			}
			data, err := sonic.Marshal(records)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}
