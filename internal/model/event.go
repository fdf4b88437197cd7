package model

import (
	"encoding/json"
	"time"
)

// Event is an immutable record of a domain fact that must fan out to
// subscriber endpoints. ProcessedAt is set exactly once, by fanout.
type Event struct {
	ID          string          `db:"id"`
	TenantID    int64           `db:"tenant_id"`
	Key         string          `db:"event_key"` // dot-namespaced, e.g. "message.created"
	RefType     string          `db:"ref_type"`
	RefID       string          `db:"ref_id"`
	Payload     json.RawMessage `db:"payload"`
	CreatedAt   time.Time       `db:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at"`
}
