package repository

import (
	"context"

	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveryReport is the operator-facing view of a ledger row as replicated
// into ClickHouse.
type DeliveryReport struct {
	EventID    string               `db:"event_id"`
	EndpointID int64                `db:"endpoint_id"`
	EventKey   string               `db:"event_key"`
	Attempt    int                  `db:"attempt"`
	Status     model.DeliveryStatus `db:"status"`
	HTTPStatus *int                 `db:"http_status"`
	DurationMs *int64               `db:"duration_ms"`
	Error      *string              `db:"error"`
	UpdatedAt  string               `db:"updated_at"`
}

// CHDeliveriesRepository lists delivery outcomes from ClickHouse (final view).
type CHDeliveriesRepository interface {
	ListByTenant(ctx context.Context, tenantID int64, status model.DeliveryStatus, endpointID int64, limit, offset int) ([]DeliveryReport, error)
}

type chDeliveriesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveriesRepository(ch *sqlx.DB) CHDeliveriesRepository {
	return &chDeliveriesRepository{ch: ch}
}

func (r *chDeliveriesRepository) ListByTenant(ctx context.Context, tenantID int64, status model.DeliveryStatus, endpointID int64, limit, offset int) ([]DeliveryReport, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT event_id, endpoint_id, event_key, attempt, status, http_status, duration_ms, error, updated_at
		FROM hookrelay.deliveries_latest
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}
	if endpointID > 0 {
		q += " AND endpoint_id = ?"
		args = append(args, endpointID)
	}

	q += " ORDER BY updated_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []DeliveryReport
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
