package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hookrelay/hookrelay/internal/fanout"
	"github.com/hookrelay/hookrelay/internal/kafka"
	"github.com/hookrelay/hookrelay/internal/logger"
	"github.com/hookrelay/hookrelay/internal/model"
	"go.uber.org/zap"
)

// FanoutWorker consumes fanout jobs and expands them through the fanout
// service. Fanout is store-bound, so a single consumer loop is enough; the
// service itself is re-runnable, so redelivery after a crash is the only
// recovery mechanism needed.
type FanoutWorker struct {
	Consumer *kafka.Consumer
	Service  *fanout.Service
}

func NewFanoutWorker(consumer *kafka.Consumer, svc *fanout.Service) *FanoutWorker {
	return &FanoutWorker{Consumer: consumer, Service: svc}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		m, err := w.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Log.Error("fanout: kafka fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		var job model.FanoutJob
		if err := json.Unmarshal(m.Value, &job); err != nil || job.EventID == "" {
			logger.Log.Warn("fanout: bad job payload", zap.Error(err))
			_ = w.Consumer.Commit(ctx, m)
			continue
		}

		if err := w.Service.Run(ctx, job.EventID); err != nil {
			// leave uncommitted; the run is idempotent and will be replayed
			logger.Log.Error("fanout: run failed", zap.String("event_id", job.EventID), zap.Error(err))
			continue
		}

		if err := w.Consumer.Commit(ctx, m); err != nil {
			logger.Log.Error("fanout: commit failed", zap.Error(err))
		}
	}
}
