package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hookrelay/hookrelay/internal/metrics"
	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/hookrelay/hookrelay/internal/queue"
	"github.com/hookrelay/hookrelay/internal/repository"
	"github.com/hookrelay/hookrelay/internal/util"
	"github.com/jmoiron/sqlx"
)

// Service atomically persists events and their fanout jobs. The event row and
// the outbox row commit in one transaction, so an event is durably recorded
// before any queue hand-off can happen — and if the relay is down, the job
// simply waits in the outbox.
type Service struct {
	db     *sqlx.DB
	events repository.EventsRepository
	outbox repository.OutboxRepository
}

// New constructs the publisher service.
func New(db *sqlx.DB, eventsRepo repository.EventsRepository, outboxRepo repository.OutboxRepository) *Service {
	return &Service{
		db:     db,
		events: eventsRepo,
		outbox: outboxRepo,
	}
}

// Publish records a domain event and stages its fanout job. Returns the
// generated event ID; delivery outcomes are observed through the ledger, not
// through this call.
func (s *Service) Publish(ctx context.Context, tenantID int64, key, refType, refID string, payload json.RawMessage) (string, error) {
	eventID := util.New()

	if payload == nil {
		payload = json.RawMessage(`null`)
	}

	job, err := json.Marshal(model.FanoutJob{EventID: eventID})
	if err != nil {
		return "", fmt.Errorf("marshal fanout job: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.events.Insert(ctx, tx, model.Event{
		ID:       eventID,
		TenantID: tenantID,
		Key:      key,
		RefType:  refType,
		RefID:    refID,
		Payload:  payload,
	}); err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}

	if err := s.outbox.Insert(ctx, tx, queue.TopicFanout, eventID, job); err != nil {
		return "", fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	metrics.EventsTotal.WithLabelValues("published").Inc()
	return eventID, nil
}
