package repository

import (
	"context"
	"database/sql"

	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/jmoiron/sqlx"
)

// EndpointsRepository reads subscriber endpoints. The only write this
// subsystem performs is flipping the enabled flag.
type EndpointsRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Endpoint, error)
	ListEnabledByTenant(ctx context.Context, tenantID int64) ([]model.Endpoint, error)
	// SetEnabled flips the enabled flag; tenantID scopes the update so one
	// tenant cannot toggle another tenant's endpoint.
	SetEnabled(ctx context.Context, tenantID, id int64, enabled bool) error
	// Disable is the worker-side auto-disable on 410 Gone; it is not tenant
	// scoped because the worker already resolved the endpoint row.
	Disable(ctx context.Context, id int64) error
}

type EndpointsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEndpointsRepository(db *sqlx.DB) *EndpointsRepositoryImpl {
	return &EndpointsRepositoryImpl{db: db}
}

var _ EndpointsRepository = (*EndpointsRepositoryImpl)(nil)

const endpointCols = `id, tenant_id, url, event_patterns, secret, enabled, created_at, updated_at`

func (r *EndpointsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Endpoint, error) {
	var ep model.Endpoint
	err := r.db.GetContext(ctx, &ep, `
		SELECT `+endpointCols+`
		  FROM endpoints
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

func (r *EndpointsRepositoryImpl) ListEnabledByTenant(ctx context.Context, tenantID int64) ([]model.Endpoint, error) {
	var eps []model.Endpoint
	err := r.db.SelectContext(ctx, &eps, `
		SELECT `+endpointCols+`
		  FROM endpoints
		 WHERE tenant_id = ? AND enabled = 1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return eps, nil
}

func (r *EndpointsRepositoryImpl) SetEnabled(ctx context.Context, tenantID, id int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE endpoints
		   SET enabled = ?, updated_at = NOW()
		 WHERE id = ? AND tenant_id = ?
	`, enabled, id, tenantID)
	return err
}

func (r *EndpointsRepositoryImpl) Disable(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE endpoints
		   SET enabled = 0, updated_at = NOW()
		 WHERE id = ?
	`, id)
	return err
}
