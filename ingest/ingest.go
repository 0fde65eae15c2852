package ingest

import (
	"context"

	log "github.com/sirupsen/logrus"

	"careplan-api/domain"
	"careplan-api/planbook"
	"careplan-api/schedule"
)

// Source is where agency data is fetched from during a refresh.
type Source interface {
	FetchEvents(ctx context.Context, agencyID string) ([]domain.EventRecord, error)
	FetchTemplates(ctx context.Context, agencyID string) ([]domain.Template, error)
	FetchClients(ctx context.Context, agencyID string) ([]domain.Participant, error)
}

// Loader pulls agency data from the source into the in-memory stores.
type Loader struct {
	Source    Source
	Schedules *schedule.Hub
	Templates *planbook.Store
	Logger    *log.Logger
}

// Refresh reloads one agency. A fetch failure is recorded on the agency's
// schedule store and leaves the previously ingested events in place; a
// retried refresh simply replaces everything on success.
func (l *Loader) Refresh(ctx context.Context, agencyID string) error {
	store := l.Schedules.Store(agencyID)

	records, err := l.Source.FetchEvents(ctx, agencyID)
	if err != nil {
		store.SetLastError("fetch schedules: " + err.Error())
		l.logError(agencyID, "fetch schedules", err)
		return err
	}
	clients, err := l.Source.FetchClients(ctx, agencyID)
	if err != nil {
		store.SetLastError("fetch clients: " + err.Error())
		l.logError(agencyID, "fetch clients", err)
		return err
	}
	templates, err := l.Source.FetchTemplates(ctx, agencyID)
	if err != nil {
		store.SetLastError("fetch templates: " + err.Error())
		l.logError(agencyID, "fetch templates", err)
		return err
	}

	events := make([]domain.Event, 0, len(records))
	for _, rec := range records {
		events = append(events, domain.Normalize(rec))
	}

	l.Schedules.SetClients(agencyID, clients)
	l.Templates.ReplaceAll(agencyID, templates)
	store.ReplaceAll(events)

	if l.Logger != nil {
		l.Logger.WithFields(log.Fields{
			"agency":    agencyID,
			"events":    len(events),
			"clients":   len(clients),
			"templates": len(templates),
		}).Info("agency refreshed")
	}
	return nil
}

// RefreshAll reloads every agency with a live store. Failures are per-agency;
// one agency's error does not stop the others.
func (l *Loader) RefreshAll(ctx context.Context) {
	for _, agencyID := range l.Schedules.Agencies() {
		if ctx.Err() != nil {
			return
		}
		_ = l.Refresh(ctx, agencyID)
	}
}

func (l *Loader) logError(agencyID, stage string, err error) {
	if l.Logger == nil {
		return
	}
	l.Logger.WithFields(log.Fields{"agency": agencyID, "stage": stage}).WithError(err).Error("refresh failed")
}
