package api

import (
	"context"

	"careplan-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchEvents(ctx context.Context, agencyID string) ([]domain.EventRecord, error)
	FetchTemplates(ctx context.Context, agencyID string) ([]domain.Template, error)
	FetchClients(ctx context.Context, agencyID string) ([]domain.Participant, error)
	UpsertEvent(ctx context.Context, agencyID string, rec domain.EventRecord) error
	DeleteEvent(ctx context.Context, agencyID, eventID string) error
	UpsertTemplate(ctx context.Context, agencyID string, tpl domain.Template) error
	DeleteTemplate(ctx context.Context, agencyID, templateID string) error
	EnqueueChanges(ctx context.Context, agencyID, userID string, changes []domain.Change) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of duplicate mutation requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// Refresher re-ingests one agency from storage into the in-memory stores.
type Refresher interface {
	Refresh(ctx context.Context, agencyID string) error
}

// Notifier fans schedule changes out to other services. Implemented by
// events.Publisher; a nil implementation is provided for deployments
// without a broker.
type Notifier interface {
	ScheduleCreated(agencyID string, rec domain.EventRecord)
	ScheduleUpdated(agencyID string, rec domain.EventRecord)
	ScheduleDeleted(agencyID, eventID string)
	TemplateApplied(agencyID, templateID, date string, eventsAdded int)
}

// NopNotifier is the no-broker Notifier.
type NopNotifier struct{}

func (NopNotifier) ScheduleCreated(string, domain.EventRecord) {}
func (NopNotifier) ScheduleUpdated(string, domain.EventRecord) {}
func (NopNotifier) ScheduleDeleted(string, string) {}
func (NopNotifier) TemplateApplied(string, string, string, int) {}
