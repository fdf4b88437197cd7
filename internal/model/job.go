package model

import "encoding/json"

// FanoutJob expands one event into per-endpoint deliveries.
type FanoutJob struct {
	EventID string `json:"event_id"`
}

// DeliverJob performs one delivery attempt for one (event, endpoint) pair.
// Attempt starts at 1; retries carry the incremented attempt number so a
// replayed stale job can be detected against the ledger row.
type DeliverJob struct {
	EventID    string `json:"event_id"`
	EndpointID int64  `json:"endpoint_id"`
	Attempt    int    `json:"attempt"`
}

// Envelope is the wire body POSTed to subscriber endpoints. It is serialized
// exactly once per attempt; the signature covers those exact bytes.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TenantID   int64           `json:"tenantId"`
	OccurredAt string          `json:"occurredAt"` // RFC 3339
	Data       json.RawMessage `json:"data"`
}
