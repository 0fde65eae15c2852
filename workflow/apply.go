package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"careplan-api/domain"
	"careplan-api/planbook"
	"careplan-api/schedule"
)

var (
	// ErrTemplateNotFound aborts an application before any store mutation.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrClientNotFound aborts an application before any store mutation.
	ErrClientNotFound = errors.New("client not found")
)

// Request asks for one template to be expanded onto one calendar day for
// one client.
type Request struct {
	AgencyID   string `json:"agencyId"`
	TemplateID string `json:"templateId"`
	ClientID   string `json:"clientId"`
	Date       string `json:"date"` // YYYY-MM-DD
}

// Result summarizes a completed application.
type Result struct {
	Success     bool `json:"success"`
	EventsAdded int  `json:"eventsAdded"`

	// Events are the expanded events, for persistence by the caller.
	Events []domain.Event `json:"-"`
}

// Applier expands templates into concrete scheduled events. It reads from
// the template store and the schedule hub's client directory and writes only
// through the schedule store's own actions; no state outside the two stores
// is touched.
type Applier struct {
	Schedules *schedule.Hub
	Templates *planbook.Store
	Logger    *log.Logger

	// AnchorToWeekday shifts each visit to the next occurrence of its stated
	// weekday on or after the target date. The default (false) reproduces
	// the platform's historical behavior: every visit lands on the target
	// date itself and the weekday is only recorded, not used.
	AnchorToWeekday bool
}

// Apply expands the requested template onto the target date.
//
// The expansion is all-or-nothing: every visit is staged before the store is
// touched, so a malformed time string rejects the whole request and leaves
// the schedule exactly as it was. On success the target day is cleared and
// repopulated in a single store mutation, which makes reapplying the same
// template to the same date idempotent.
func (a *Applier) Apply(ctx context.Context, req Request) (Result, error) {
	tpl, ok := a.Templates.Get(req.AgencyID, req.TemplateID)
	if !ok {
		return Result{}, ErrTemplateNotFound
	}
	client, ok := a.Schedules.Client(req.AgencyID, req.ClientID)
	if !ok {
		return Result{}, ErrClientNotFound
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
	if err != nil {
		return Result{}, fmt.Errorf("invalid target date %q: %w", req.Date, err)
	}

	staged := make([]domain.Event, 0, len(tpl.Visits))
	for _, visit := range tpl.Visits {
		ev, err := a.expandVisit(tpl, visit, client, day)
		if err != nil {
			return Result{}, fmt.Errorf("visit %s: %w", visit.ID, err)
		}
		ev.AgencyID = req.AgencyID
		staged = append(staged, ev)
	}

	store := a.Schedules.Store(req.AgencyID)
	store.ReplaceDay(day, staged)
	a.Templates.RecordApplied(req.AgencyID, tpl.ID, req.Date)

	if a.Logger != nil {
		a.Logger.WithFields(log.Fields{
			"agency":   req.AgencyID,
			"template": tpl.ID,
			"date":     req.Date,
			"events":   len(staged),
		}).Info("template applied")
	}

	return Result{Success: true, EventsAdded: len(staged), Events: staged}, nil
}

func (a *Applier) expandVisit(tpl domain.Template, visit domain.TemplateVisit, client domain.Participant, target time.Time) (domain.Event, error) {
	day := target
	if a.AnchorToWeekday {
		idx, ok := visit.Day.Index()
		if !ok {
			return domain.Event{}, fmt.Errorf("unknown weekday %q", visit.Day)
		}
		offset := (idx - int(target.Weekday()) + 7) % 7
		day = target.AddDate(0, 0, offset)
	}

	start, err := domain.AtTimeOfDay(day, visit.StartTime)
	if err != nil {
		return domain.Event{}, err
	}
	end, err := domain.AtTimeOfDay(day, visit.EndTime)
	if err != nil {
		return domain.Event{}, err
	}
	if !start.Before(end) {
		return domain.Event{}, fmt.Errorf("start %s is not before end %s", visit.StartTime, visit.EndTime)
	}

	return domain.Event{
		ID:         uuid.NewString(),
		AgencyID:   tpl.AgencyID,
		Title:      "Home visit",
		Date:       day,
		Start:      start,
		End:        end,
		StartTime:  visit.StartTime,
		EndTime:    visit.EndTime,
		ClientID:   client.ID,
		Type:       domain.TypeHomeVisit,
		Status:     domain.StatusScheduled,
		Notes:      "Applied from template: " + tpl.Name,
		Color:      domain.ColorFor(domain.TypeHomeVisit),
		Client:     client,
		CareWorker: domain.Participant{FullName: visit.CareWorkerName},
	}, nil
}
