package domain

import "github.com/bytedance/sonic"

// Change represents one schedule or template mutation on the change feed.
type Change struct {
	// ID carries the idempotency key when the change is enqueued downstream.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	EntityType     string                 `json:"entityType"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// ChangeEnvelope wraps a change with the agency it belongs to and the user
// who performed it.
type ChangeEnvelope struct {
	AgencyID string `json:"agencyId"`
	UserID   string `json:"userId"`
	Change   Change `json:"change"`
}
