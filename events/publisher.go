package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"careplan-api/domain"
)

// Publisher pushes schedule change notifications to NATS for interested
// services (billing, the mobile push gateway). It is optional; a nil
// *Publisher is safe to call and publishes nothing.
type Publisher struct {
	nc     *nats.Conn
	logger *log.Logger
}

// NewPublisher connects to NATS at the given URL.
func NewPublisher(natsURL string, logger *log.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.WithField("url", natsURL).Info("connected to NATS")
	return &Publisher{nc: nc, logger: logger}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}

// ScheduleEvent is the published payload.
type ScheduleEvent struct {
	Type      string              `json:"type"`
	AgencyID  string              `json:"agencyId"`
	Event     *domain.EventRecord `json:"event,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Message   string              `json:"message,omitempty"`
}

func (p *Publisher) publish(subject string, ev ScheduleEvent) {
	if p == nil || p.nc == nil {
		return
	}
	ev.Timestamp = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.WithError(err).Error("marshal schedule event")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.WithError(err).WithField("subject", subject).Error("publish schedule event")
	}
}

// ScheduleCreated announces a newly created schedule.
func (p *Publisher) ScheduleCreated(agencyID string, rec domain.EventRecord) {
	p.publish("careplan.schedule.created", ScheduleEvent{Type: "schedule.created", AgencyID: agencyID, Event: &rec})
}

// ScheduleUpdated announces an updated schedule.
func (p *Publisher) ScheduleUpdated(agencyID string, rec domain.EventRecord) {
	p.publish("careplan.schedule.updated", ScheduleEvent{Type: "schedule.updated", AgencyID: agencyID, Event: &rec})
}

// ScheduleDeleted announces a deleted schedule.
func (p *Publisher) ScheduleDeleted(agencyID, eventID string) {
	p.publish("careplan.schedule.deleted", ScheduleEvent{Type: "schedule.deleted", AgencyID: agencyID, Message: eventID})
}

// TemplateApplied announces a completed template application.
func (p *Publisher) TemplateApplied(agencyID, templateID, date string, eventsAdded int) {
	p.publish("careplan.template.applied", ScheduleEvent{
		Type:     "template.applied",
		AgencyID: agencyID,
		Message:  fmt.Sprintf("template %s applied to %s (%d events)", templateID, date, eventsAdded),
	})
}
