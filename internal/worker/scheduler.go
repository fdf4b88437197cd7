package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hookrelay/hookrelay/internal/kafka"
	"github.com/hookrelay/hookrelay/internal/logger"
	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/hookrelay/hookrelay/internal/queue"
	"go.uber.org/zap"
)

// SchedulerWorker moves due retry jobs from the Redis delay set back onto the
// deliver topic. Publish happens before ack, so a crash in between re-sends
// the job rather than losing it.
type SchedulerWorker struct {
	Scheduler *queue.RetryScheduler
	Producer  *kafka.Producer

	PollInterval time.Duration
	BatchSize    int64
}

func NewSchedulerWorker(s *queue.RetryScheduler, p *kafka.Producer) *SchedulerWorker {
	return &SchedulerWorker{
		Scheduler:    s,
		Producer:     p,
		PollInterval: 500 * time.Millisecond,
		BatchSize:    200,
	}
}

func (w *SchedulerWorker) Run(ctx context.Context) error {
	if w.PollInterval <= 0 {
		w.PollInterval = 500 * time.Millisecond
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 200
	}

	tick := time.NewTicker(w.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			w.moveDue(ctx)
		}
	}
}

func (w *SchedulerWorker) moveDue(ctx context.Context) {
	members, err := w.Scheduler.Due(ctx, time.Now(), w.BatchSize)
	if err != nil {
		logger.Log.Error("scheduler: fetch due failed", zap.Error(err))
		return
	}

	for _, member := range members {
		var job model.DeliverJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			logger.Log.Warn("scheduler: dropping malformed member", zap.Error(err))
			_ = w.Scheduler.Ack(ctx, member)
			continue
		}

		key := model.IdempotencyKey(job.EventID, job.EndpointID)
		if err := w.Producer.Publish(ctx, queue.TopicDeliver, key, []byte(member)); err != nil {
			logger.Log.Error("scheduler: publish failed",
				zap.String("event_id", job.EventID), zap.Int64("endpoint_id", job.EndpointID), zap.Error(err))
			return // member stays in the set, retried next tick
		}

		if err := w.Scheduler.Ack(ctx, member); err != nil {
			logger.Log.Error("scheduler: ack failed", zap.Error(err))
			return
		}
	}
}
