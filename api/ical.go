package api

import (
	"net/http"

	ical "github.com/arran4/golang-ical"
	"github.com/labstack/echo/v4"
)

// getSchedulesICal renders the agency's filtered view as an iCalendar feed,
// one VEVENT per schedule, so care workers can subscribe from their own
// calendar apps.
func getSchedulesICal(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if _, err := d.Auth.UserIDFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		agencyID, ok := agencyIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "agencyId is required"})
		}

		cal := ical.NewCalendar()
		cal.SetMethod(ical.MethodPublish)
		cal.SetProductId("-//careplan//schedules//EN")

		for _, ev := range d.Schedules.Store(agencyID).Filtered() {
			ve := cal.AddEvent(ev.ID)
			ve.SetStartAt(ev.Start)
			ve.SetEndAt(ev.End)
			summary := ev.Title
			if summary == "" {
				summary = string(ev.Type)
			}
			if ev.Client.FullName != "" {
				summary += " - " + ev.Client.FullName
			}
			ve.SetSummary(summary)
			if ev.Notes != "" {
				ve.SetDescription(ev.Notes)
			}
			if ev.CareWorker.FullName != "" {
				ve.SetProperty(ical.ComponentProperty(ical.PropertyComment), "Care worker: "+ev.CareWorker.FullName)
			}
			ve.SetProperty(ical.ComponentProperty(ical.PropertyStatus), string(ev.Status))
		}

		return c.Blob(http.StatusOK, "text/calendar", []byte(cal.Serialize()))
	}
}
