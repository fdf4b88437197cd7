package model

import (
	"fmt"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliveryOK      DeliveryStatus = "ok"
	DeliverySkipped DeliveryStatus = "skipped"
	DeliveryFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string {
	return string(s)
}

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryPending || s == DeliveryOK || s == DeliverySkipped || s == DeliveryFailed
}

// Terminal reports whether no further job may mutate a row in this status.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryOK || s == DeliverySkipped || s == DeliveryFailed
}

// Delivery is one (event, endpoint) ledger row: the unit of idempotency,
// the retry state machine, and the audit trail of the last attempt. Rows are
// never deleted.
type Delivery struct {
	EventID        string         `db:"event_id"`
	EndpointID     int64          `db:"endpoint_id"`
	TenantID       int64          `db:"tenant_id"`
	IdempotencyKey string         `db:"idempotency_key"`
	Attempt        int            `db:"attempt"`
	Status         DeliveryStatus `db:"status"`
	HTTPStatus     *int           `db:"http_status"`
	DurationMs     *int64         `db:"duration_ms"`
	Error          *string        `db:"error"`
	Signature      *string        `db:"signature"`
	NextAttemptAt  *time.Time     `db:"next_attempt_at"`
	DeliveredAt    *time.Time     `db:"delivered_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// IdempotencyKey derives the subscriber-facing dedupe key for a pair.
func IdempotencyKey(eventID string, endpointID int64) string {
	return fmt.Sprintf("%s-%d", eventID, endpointID)
}
