package queue

import (
	"context"
	"encoding/json"

	"github.com/hookrelay/hookrelay/internal/kafka"
	"github.com/hookrelay/hookrelay/internal/model"
)

// Enqueuer publishes typed jobs onto their Kafka topics. Deliver jobs are
// keyed by pair so retries of the same (event, endpoint) land on one
// partition.
type Enqueuer struct {
	producer *kafka.Producer
}

func NewEnqueuer(p *kafka.Producer) *Enqueuer {
	return &Enqueuer{producer: p}
}

func (e *Enqueuer) EnqueueDeliver(ctx context.Context, job model.DeliverJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return e.producer.Publish(ctx, TopicDeliver, model.IdempotencyKey(job.EventID, job.EndpointID), payload)
}
