package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/jmoiron/sqlx"
)

// AttemptResult carries everything a finished delivery attempt recorded, so
// the ledger row stays a complete audit trail regardless of outcome.
// DurationMs stays nil when the attempt never made an outbound call.
type AttemptResult struct {
	EventID    string
	EndpointID int64
	Attempt    int
	Status     model.DeliveryStatus
	HTTPStatus *int
	DurationMs *int64
	Signature  string
	Error      *string
}

// DeliveriesRepository persists the delivery ledger. Rows are created once
// per (event, endpoint) pair and only ever move forward; nothing deletes them.
type DeliveriesRepository interface {
	// CreatePending inserts a pending row for the pair. A duplicate insert is
	// absorbed by the composite unique key and reported as created=false, so
	// fanout can re-run safely.
	CreatePending(ctx context.Context, d model.Delivery) (created bool, err error)
	GetByPair(ctx context.Context, eventID string, endpointID int64) (*model.Delivery, error)
	// MarkResult finalizes an attempt terminally (ok/skipped/failed). The
	// status guard makes a replayed stale job a no-op.
	MarkResult(ctx context.Context, r AttemptResult) error
	// MarkRetry keeps the row pending, bumps attempt to the next attempt
	// number, and records when it becomes due.
	MarkRetry(ctx context.Context, r AttemptResult, nextAttempt int, nextAttemptAt time.Time) error
}

type DeliveriesRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveriesRepository(db *sqlx.DB) *DeliveriesRepositoryImpl {
	return &DeliveriesRepositoryImpl{db: db}
}

var _ DeliveriesRepository = (*DeliveriesRepositoryImpl)(nil)

func (r *DeliveriesRepositoryImpl) CreatePending(ctx context.Context, d model.Delivery) (bool, error) {
	// ON DUPLICATE KEY no-op: affected rows is 1 for a fresh insert, 0 when
	// the pair already exists.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deliveries
		    (event_id, endpoint_id, tenant_id, idempotency_key, attempt, status, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, 1, 'pending', NOW(3), NOW(3))
		ON DUPLICATE KEY UPDATE event_id = event_id
	`, d.EventID, d.EndpointID, d.TenantID, d.IdempotencyKey)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *DeliveriesRepositoryImpl) GetByPair(ctx context.Context, eventID string, endpointID int64) (*model.Delivery, error) {
	var d model.Delivery
	err := r.db.GetContext(ctx, &d, `
		SELECT event_id, endpoint_id, tenant_id, idempotency_key, attempt, status,
		       http_status, duration_ms, error, signature, next_attempt_at,
		       delivered_at, created_at, updated_at
		  FROM deliveries
		 WHERE event_id = ? AND endpoint_id = ? LIMIT 1
	`, eventID, endpointID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeliveriesRepositoryImpl) MarkResult(ctx context.Context, res AttemptResult) error {
	var deliveredAt any
	if res.Status == model.DeliveryOK {
		deliveredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE deliveries
		   SET status = ?, attempt = ?, http_status = ?, duration_ms = ?,
		       error = ?, signature = ?, next_attempt_at = NULL,
		       delivered_at = ?, updated_at = NOW(3)
		 WHERE event_id = ? AND endpoint_id = ? AND status = 'pending'
	`, res.Status.String(), res.Attempt, res.HTTPStatus, res.DurationMs,
		res.Error, res.Signature, deliveredAt, res.EventID, res.EndpointID)
	return err
}

func (r *DeliveriesRepositoryImpl) MarkRetry(ctx context.Context, res AttemptResult, nextAttempt int, nextAttemptAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deliveries
		   SET status = 'pending', attempt = ?, http_status = ?, duration_ms = ?,
		       error = ?, signature = ?, next_attempt_at = ?, updated_at = NOW(3)
		 WHERE event_id = ? AND endpoint_id = ? AND status = 'pending'
	`, nextAttempt, res.HTTPStatus, res.DurationMs,
		res.Error, res.Signature, nextAttemptAt.UTC(), res.EventID, res.EndpointID)
	return err
}
