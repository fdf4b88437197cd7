package repository

import (
	"context"
	"database/sql"

	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/jmoiron/sqlx"
)

// EventsRepository defines persistence for the events table.
type EventsRepository interface {
	// Insert writes a single event row. If tx is nil, it will open/commit an
	// internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, e model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	// MarkProcessed stamps processed_at once; re-running is a no-op.
	MarkProcessed(ctx context.Context, id string) error
}

type EventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEventsRepository(db *sqlx.DB) *EventsRepositoryImpl {
	return &EventsRepositoryImpl{db: db}
}

var _ EventsRepository = (*EventsRepositoryImpl)(nil)

func (r *EventsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *EventsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, e model.Event) error {
	const q = `
		INSERT INTO events
		    (id, tenant_id, event_key, ref_type, ref_id, payload, created_at)
		VALUES
		    (?,  ?,         ?,         ?,        ?,      ?,       NOW(3))
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.TenantID, e.Key, e.RefType, e.RefID, []byte(e.Payload),
		)
		return err
	})
}

func (r *EventsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.db.GetContext(ctx, &e, `
		SELECT id, tenant_id, event_key, ref_type, ref_id, payload, created_at, processed_at
		  FROM events
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventsRepositoryImpl) MarkProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events
		   SET processed_at = COALESCE(processed_at, NOW(3))
		 WHERE id = ?
	`, id)
	return err
}
