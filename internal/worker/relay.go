package worker

import (
	"context"
	"time"

	"github.com/hookrelay/hookrelay/internal/kafka"
	"github.com/hookrelay/hookrelay/internal/logger"
	"github.com/hookrelay/hookrelay/internal/repository"
	"go.uber.org/zap"
)

// Relay ships transactional-outbox rows to Kafka. publish() commits the job
// row with the event row; this loop makes the hand-off to the broker happen
// eventually even when the broker was down at publish time.
type Relay struct {
	Outbox   repository.OutboxRepository
	Producer *kafka.Producer

	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(outbox repository.OutboxRepository, producer *kafka.Producer) *Relay {
	return &Relay{
		Outbox:       outbox,
		Producer:     producer,
		PollInterval: 250 * time.Millisecond,
		BatchSize:    200,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	if r.PollInterval <= 0 {
		r.PollInterval = 250 * time.Millisecond
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 200
	}

	tick := time.NewTicker(r.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			r.drain(ctx)
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	for {
		rows, err := r.Outbox.FetchUnpublished(ctx, r.BatchSize)
		if err != nil {
			logger.Log.Error("relay: fetch outbox failed", zap.Error(err))
			return
		}
		if len(rows) == 0 {
			return
		}

		published := make([]int64, 0, len(rows))
		for _, row := range rows {
			if err := r.Producer.Publish(ctx, row.Topic, row.Key, row.Payload); err != nil {
				logger.Log.Error("relay: publish failed",
					zap.Int64("outbox_id", row.ID), zap.String("topic", row.Topic), zap.Error(err))
				break // keep outbox order within the batch
			}
			published = append(published, row.ID)
		}

		if len(published) > 0 {
			if err := r.Outbox.MarkPublished(ctx, published); err != nil {
				// rows will be re-published; consumers tolerate duplicates
				logger.Log.Error("relay: mark published failed", zap.Error(err))
				return
			}
		}

		if len(published) < len(rows) {
			return // hit a publish error, retry on next tick
		}
	}
}
