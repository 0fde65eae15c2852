package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"careplan-api/domain"
)

// Storage persists schedules, templates and clients in Azure Table Storage,
// partitioned by agency, and feeds mutations to the change queue.
type Storage struct {
	eventTable    *aztables.Client
	templateTable *aztables.Client
	clientTable   *aztables.Client
	changeQueue   *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, eventsTable, templatesTable, clientsTable, changeQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, changeQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		eventTable:    svc.NewClient(eventsTable),
		templateTable: svc.NewClient(templatesTable),
		clientTable:   svc.NewClient(clientsTable),
		changeQueue:   cq,
	}, nil
}

type eventEntity struct {
	aztables.Entity
	Title          string `json:"Title"`
	Start          string `json:"Start"`
	End            string `json:"End"`
	Date           string `json:"Date"`
	StartTime      string `json:"StartTime"`
	EndTime        string `json:"EndTime"`
	ClientID       string `json:"ClientId"`
	Type           string `json:"Type"`
	Status         string `json:"Status"`
	Notes          string `json:"Notes"`
	Color          string `json:"Color"`
	CareWorkerID   string `json:"CareWorkerId"`
	CareWorkerName string `json:"CareWorkerName"`
	ClientName     string `json:"ClientName"`
}

func (e eventEntity) record() domain.EventRecord {
	return domain.EventRecord{
		ID:        e.RowKey,
		AgencyID:  e.PartitionKey,
		Title:     e.Title,
		Start:     e.Start,
		End:       e.End,
		Date:      e.Date,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		ClientID:  e.ClientID,
		Type:      e.Type,
		Status:    e.Status,
		Notes:     e.Notes,
		Color:     e.Color,
		User:      domain.Participant{ID: e.CareWorkerID, FullName: e.CareWorkerName},
		Client:    domain.Participant{ID: e.ClientID, FullName: e.ClientName},
	}
}

func entityFromRecord(agencyID string, rec domain.EventRecord) eventEntity {
	return eventEntity{
		Entity:         aztables.Entity{PartitionKey: agencyID, RowKey: rec.ID},
		Title:          rec.Title,
		Start:          rec.Start,
		End:            rec.End,
		Date:           rec.Date,
		StartTime:      rec.StartTime,
		EndTime:        rec.EndTime,
		ClientID:       rec.ClientID,
		Type:           rec.Type,
		Status:         rec.Status,
		Notes:          rec.Notes,
		Color:          rec.Color,
		CareWorkerID:   rec.User.ID,
		CareWorkerName: rec.User.FullName,
		ClientName:     rec.Client.FullName,
	}
}

// FetchEvents retrieves all schedule records for the agency.
func (s *Storage) FetchEvents(ctx context.Context, agencyID string) ([]domain.EventRecord, error) {
	filter := "PartitionKey eq '" + agencyID + "'"
	pager := s.eventTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	records := []domain.EventRecord{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent eventEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			records = append(records, ent.record())
		}
	}
	return records, nil
}

// UpsertEvent writes one schedule record.
func (s *Storage) UpsertEvent(ctx context.Context, agencyID string, rec domain.EventRecord) error {
	data, err := json.Marshal(entityFromRecord(agencyID, rec))
	if err != nil {
		return err
	}
	_, err = s.eventTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// DeleteEvent removes one schedule record.
func (s *Storage) DeleteEvent(ctx context.Context, agencyID, eventID string) error {
	_, err := s.eventTable.DeleteEntity(ctx, agencyID, eventID, nil)
	return err
}

type templateEntity struct {
	aztables.Entity
	Name     string `json:"Name"`
	IsActive bool   `json:"IsActive"`
	Visits   string `json:"Visits"` // JSON-encoded []domain.TemplateVisit
}

// FetchTemplates retrieves all visit templates for the agency.
func (s *Storage) FetchTemplates(ctx context.Context, agencyID string) ([]domain.Template, error) {
	filter := "PartitionKey eq '" + agencyID + "'"
	pager := s.templateTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	templates := []domain.Template{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent templateEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tpl := domain.Template{
				ID:       ent.RowKey,
				AgencyID: ent.PartitionKey,
				Name:     ent.Name,
				IsActive: ent.IsActive,
			}
			if ent.Visits != "" {
				if err := json.Unmarshal([]byte(ent.Visits), &tpl.Visits); err != nil {
					return nil, err
				}
			}
			templates = append(templates, tpl)
		}
	}
	return templates, nil
}

// UpsertTemplate writes one template, visits included.
func (s *Storage) UpsertTemplate(ctx context.Context, agencyID string, tpl domain.Template) error {
	visits, err := json.Marshal(tpl.Visits)
	if err != nil {
		return err
	}
	ent := templateEntity{
		Entity:   aztables.Entity{PartitionKey: agencyID, RowKey: tpl.ID},
		Name:     tpl.Name,
		IsActive: tpl.IsActive,
		Visits:   string(visits),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.templateTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// DeleteTemplate removes one template. Events already expanded from it are
// not touched.
func (s *Storage) DeleteTemplate(ctx context.Context, agencyID, templateID string) error {
	_, err := s.templateTable.DeleteEntity(ctx, agencyID, templateID, nil)
	return err
}

type clientEntity struct {
	aztables.Entity
	FullName string `json:"FullName"`
}

// FetchClients retrieves the agency's client directory.
func (s *Storage) FetchClients(ctx context.Context, agencyID string) ([]domain.Participant, error) {
	filter := "PartitionKey eq '" + agencyID + "'"
	pager := s.clientTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	clients := []domain.Participant{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent clientEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			clients = append(clients, domain.Participant{ID: ent.RowKey, FullName: ent.FullName})
		}
	}
	return clients, nil
}

// EnqueueChanges sends the given changes to the change queue for downstream
// consumers (billing, notifications, audit).
func (s *Storage) EnqueueChanges(ctx context.Context, agencyID, userID string, changes []domain.Change) error {
	for _, change := range changes {
		env := domain.ChangeEnvelope{AgencyID: agencyID, UserID: userID, Change: change}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := s.changeQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}
