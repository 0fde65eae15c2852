package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"careplan-api/domain"
)

type backend interface {
	FetchEvents(ctx context.Context, agencyID string) ([]domain.EventRecord, error)
	FetchTemplates(ctx context.Context, agencyID string) ([]domain.Template, error)
	FetchClients(ctx context.Context, agencyID string) ([]domain.Participant, error)
	UpsertEvent(ctx context.Context, agencyID string, rec domain.EventRecord) error
	DeleteEvent(ctx context.Context, agencyID, eventID string) error
	UpsertTemplate(ctx context.Context, agencyID string, tpl domain.Template) error
	DeleteTemplate(ctx context.Context, agencyID, templateID string) error
	EnqueueChanges(ctx context.Context, agencyID, userID string, changes []domain.Change) error
}

// Cache wraps a Storage instance with redis-backed caching for the per-agency
// read paths. Writes go straight through and evict the agency's cached reads.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided redis client and TTL.
// A nil client or zero TTL disables caching but keeps the wrapper usable.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// FetchEvents serves the agency's schedule records from redis when possible.
func (c *Cache) FetchEvents(ctx context.Context, agencyID string) ([]domain.EventRecord, error) {
	var cached []domain.EventRecord
	if c.load(ctx, eventsCacheKey(agencyID), &cached) {
		return cached, nil
	}
	records, err := c.base.FetchEvents(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, eventsCacheKey(agencyID), records)
	return records, nil
}

// FetchTemplates serves the agency's templates from redis when possible.
func (c *Cache) FetchTemplates(ctx context.Context, agencyID string) ([]domain.Template, error) {
	var cached []domain.Template
	if c.load(ctx, templatesCacheKey(agencyID), &cached) {
		return cached, nil
	}
	templates, err := c.base.FetchTemplates(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, templatesCacheKey(agencyID), templates)
	return templates, nil
}

// FetchClients serves the agency's client directory from redis when possible.
func (c *Cache) FetchClients(ctx context.Context, agencyID string) ([]domain.Participant, error) {
	var cached []domain.Participant
	if c.load(ctx, clientsCacheKey(agencyID), &cached) {
		return cached, nil
	}
	clients, err := c.base.FetchClients(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, clientsCacheKey(agencyID), clients)
	return clients, nil
}

// UpsertEvent writes through and evicts the agency's cached events.
func (c *Cache) UpsertEvent(ctx context.Context, agencyID string, rec domain.EventRecord) error {
	if err := c.base.UpsertEvent(ctx, agencyID, rec); err != nil {
		return err
	}
	c.evict(ctx, eventsCacheKey(agencyID))
	return nil
}

// DeleteEvent writes through and evicts the agency's cached events.
func (c *Cache) DeleteEvent(ctx context.Context, agencyID, eventID string) error {
	if err := c.base.DeleteEvent(ctx, agencyID, eventID); err != nil {
		return err
	}
	c.evict(ctx, eventsCacheKey(agencyID))
	return nil
}

// UpsertTemplate writes through and evicts the agency's cached templates.
func (c *Cache) UpsertTemplate(ctx context.Context, agencyID string, tpl domain.Template) error {
	if err := c.base.UpsertTemplate(ctx, agencyID, tpl); err != nil {
		return err
	}
	c.evict(ctx, templatesCacheKey(agencyID))
	return nil
}

// DeleteTemplate writes through and evicts the agency's cached templates.
func (c *Cache) DeleteTemplate(ctx context.Context, agencyID, templateID string) error {
	if err := c.base.DeleteTemplate(ctx, agencyID, templateID); err != nil {
		return err
	}
	c.evict(ctx, templatesCacheKey(agencyID))
	return nil
}

// EnqueueChanges passes through to the backing queue.
func (c *Cache) EnqueueChanges(ctx context.Context, agencyID, userID string, changes []domain.Change) error {
	return c.base.EnqueueChanges(ctx, agencyID, userID, changes)
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func eventsCacheKey(agencyID string) string    { return "schedules:" + agencyID }
func templatesCacheKey(agencyID string) string { return "templates:" + agencyID }
func clientsCacheKey(agencyID string) string   { return "clients:" + agencyID }
