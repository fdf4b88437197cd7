package fanout

import (
	"context"
	"fmt"

	"github.com/hookrelay/hookrelay/internal/logger"
	"github.com/hookrelay/hookrelay/internal/metrics"
	"github.com/hookrelay/hookrelay/internal/model"
	"go.uber.org/zap"
)

// EventsStore is the slice of the events repository fanout needs.
type EventsStore interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
	MarkProcessed(ctx context.Context, id string) error
}

// EndpointsStore lists a tenant's enabled endpoints.
type EndpointsStore interface {
	ListEnabledByTenant(ctx context.Context, tenantID int64) ([]model.Endpoint, error)
}

// DeliveriesStore creates ledger rows idempotently.
type DeliveriesStore interface {
	CreatePending(ctx context.Context, d model.Delivery) (created bool, err error)
	GetByPair(ctx context.Context, eventID string, endpointID int64) (*model.Delivery, error)
}

// DeliverEnqueuer enqueues a deliver job for a newly created ledger row.
type DeliverEnqueuer interface {
	EnqueueDeliver(ctx context.Context, job model.DeliverJob) error
}

// Service expands one event into per-endpoint delivery rows. Every step is
// idempotent or a safe no-op, so the whole run can be replayed after a crash:
// existing rows are skipped, missing ones are created.
type Service struct {
	Events     EventsStore
	Endpoints  EndpointsStore
	Deliveries DeliveriesStore
	Enqueuer   DeliverEnqueuer
}

func New(events EventsStore, endpoints EndpointsStore, deliveries DeliveriesStore, enq DeliverEnqueuer) *Service {
	return &Service{
		Events:     events,
		Endpoints:  endpoints,
		Deliveries: deliveries,
		Enqueuer:   enq,
	}
}

// Run processes one fanout job. A nil return means the job is finished and
// may be committed; an error means the queue should redeliver it.
func (s *Service) Run(ctx context.Context, eventID string) error {
	ev, err := s.Events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("fanout: load event %s: %w", eventID, err)
	}
	if ev == nil {
		// removed out-of-band; nothing to fan out
		logger.Log.Warn("fanout: event not found, dropping job", zap.String("event_id", eventID))
		return nil
	}

	eps, err := s.Endpoints.ListEnabledByTenant(ctx, ev.TenantID)
	if err != nil {
		return fmt.Errorf("fanout: list endpoints tenant=%d: %w", ev.TenantID, err)
	}

	for _, ep := range eps {
		if !MatchesAny(ev.Key, ep.EventPatterns) {
			continue
		}

		created, err := s.Deliveries.CreatePending(ctx, model.Delivery{
			EventID:        ev.ID,
			EndpointID:     ep.ID,
			TenantID:       ev.TenantID,
			IdempotencyKey: model.IdempotencyKey(ev.ID, ep.ID),
		})
		if err != nil {
			return fmt.Errorf("fanout: create delivery %s/%d: %w", ev.ID, ep.ID, err)
		}
		if !created {
			// an earlier run created the row; only rows still waiting for
			// their first attempt need the job re-sent (an earlier run may
			// have crashed between insert and enqueue). Rows with any
			// recorded attempt already have their job in flight.
			row, err := s.Deliveries.GetByPair(ctx, ev.ID, ep.ID)
			if err != nil {
				return fmt.Errorf("fanout: load delivery %s/%d: %w", ev.ID, ep.ID, err)
			}
			if row == nil || row.Status != model.DeliveryPending ||
				row.Attempt != 1 || row.HTTPStatus != nil || row.NextAttemptAt != nil {
				continue
			}
			// duplicate jobs are absorbed by the worker's terminal and
			// stale-attempt guards
		}

		if err := s.Enqueuer.EnqueueDeliver(ctx, model.DeliverJob{
			EventID:    ev.ID,
			EndpointID: ep.ID,
			Attempt:    1,
		}); err != nil {
			return fmt.Errorf("fanout: enqueue deliver %s/%d: %w", ev.ID, ep.ID, err)
		}
	}

	if err := s.Events.MarkProcessed(ctx, ev.ID); err != nil {
		return fmt.Errorf("fanout: mark processed %s: %w", ev.ID, err)
	}

	metrics.EventsTotal.WithLabelValues("fanned_out").Inc()
	return nil
}
