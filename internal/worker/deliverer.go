package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hookrelay/hookrelay/internal/kafka"
	"github.com/hookrelay/hookrelay/internal/logger"
	"github.com/hookrelay/hookrelay/internal/metrics"
	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/hookrelay/hookrelay/internal/repository"
	"github.com/hookrelay/hookrelay/internal/sender"
	"go.uber.org/zap"
)

// EventLoader loads the event a deliver job refers to.
type EventLoader interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// EndpointLoader loads endpoints and applies the 410 auto-disable.
type EndpointLoader interface {
	GetByID(ctx context.Context, id int64) (*model.Endpoint, error)
	Disable(ctx context.Context, id int64) error
}

// Ledger is the slice of the deliveries repository the worker mutates.
type Ledger interface {
	GetByPair(ctx context.Context, eventID string, endpointID int64) (*model.Delivery, error)
	MarkResult(ctx context.Context, r repository.AttemptResult) error
	MarkRetry(ctx context.Context, r repository.AttemptResult, nextAttempt int, nextAttemptAt time.Time) error
}

// Poster performs the signed outbound call.
type Poster interface {
	Send(ctx context.Context, req sender.Request) sender.Result
}

// SecretDecrypter opens the endpoint's encrypted signing secret.
type SecretDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// RetryScheduler parks a deliver job until its backoff expires.
type RetryScheduler interface {
	Schedule(ctx context.Context, job model.DeliverJob, at time.Time) error
}

// Deliverer:
// - fetches deliver jobs from Kafka,
// - performs one signed HTTP attempt per job,
// - transitions the delivery ledger and schedules backoff retries.
type Deliverer struct {
	// Dependencies
	Consumer   *kafka.Consumer
	Events     EventLoader
	Endpoints  EndpointLoader
	Deliveries Ledger
	Sender     Poster
	Decrypter  SecretDecrypter
	Scheduler  RetryScheduler

	// Behavior
	Workers       int
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffJitter time.Duration
}

// NewDeliverer builds a worker with sane defaults.
func NewDeliverer(
	consumer *kafka.Consumer,
	events EventLoader,
	endpoints EndpointLoader,
	deliveries Ledger,
	poster Poster,
	decrypter SecretDecrypter,
	scheduler RetryScheduler,
) *Deliverer {
	return &Deliverer{
		Consumer:      consumer,
		Events:        events,
		Endpoints:     endpoints,
		Deliveries:    deliveries,
		Sender:        poster,
		Decrypter:     decrypter,
		Scheduler:     scheduler,
		Workers:       64,
		MaxRetries:    8,
		BackoffBase:   2 * time.Second,
		BackoffJitter: 400 * time.Millisecond,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *Deliverer) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 64
	}
	if w.MaxRetries <= 0 {
		w.MaxRetries = 8
	}
	if w.BackoffBase <= 0 {
		w.BackoffBase = 2 * time.Second
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Log.Error("deliver: kafka fetch failed", zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				msgCh <- m
			}
		}
	}()

	// Processors
	for i := 0; i < w.Workers; i++ {
		go w.runProcessor(ctx, msgCh)
	}

	<-ctx.Done()
	return nil
}

func (w *Deliverer) runProcessor(ctx context.Context, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, m)
		}
	}
}

func (w *Deliverer) processOne(ctx context.Context, m kafka.Message) {
	var job model.DeliverJob
	if err := json.Unmarshal(m.Value, &job); err != nil || job.EventID == "" || job.EndpointID == 0 {
		// poison message: commit and skip
		logger.Log.Warn("deliver: bad job payload", zap.Error(err))
		_ = w.Consumer.Commit(ctx, m)
		return
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}

	if err := w.ProcessJob(ctx, job); err != nil {
		// leave uncommitted so the queue redelivers; every transition is
		// idempotent, so redelivery is safe
		logger.Log.Error("deliver: job failed",
			zap.String("event_id", job.EventID),
			zap.Int64("endpoint_id", job.EndpointID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))
		return
	}

	if err := w.Consumer.Commit(ctx, m); err != nil {
		logger.Log.Error("deliver: commit failed", zap.Error(err))
	}
}

// ProcessJob performs one delivery attempt. A nil return means the job is
// finished (including the drop cases); an error asks for queue redelivery.
func (w *Deliverer) ProcessJob(ctx context.Context, job model.DeliverJob) error {
	d, err := w.Deliveries.GetByPair(ctx, job.EventID, job.EndpointID)
	if err != nil {
		return fmt.Errorf("load delivery: %w", err)
	}
	if d == nil {
		logger.Log.Warn("deliver: ledger row missing, dropping job",
			zap.String("event_id", job.EventID), zap.Int64("endpoint_id", job.EndpointID))
		return nil
	}
	if d.Status.Terminal() {
		// replayed job for a finished row
		return nil
	}
	if job.Attempt < d.Attempt {
		// stale job: the row already moved to a later attempt
		return nil
	}

	ev, err := w.Events.GetByID(ctx, job.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	ep, epErr := w.Endpoints.GetByID(ctx, job.EndpointID)
	if epErr != nil {
		return fmt.Errorf("load endpoint: %w", epErr)
	}
	if ev == nil || ep == nil {
		logger.Log.Warn("deliver: event or endpoint removed out-of-band, dropping job",
			zap.String("event_id", job.EventID), zap.Int64("endpoint_id", job.EndpointID))
		return nil
	}

	// serialize once: the signature is a function of these exact bytes
	body, err := json.Marshal(model.Envelope{
		ID:         ev.ID,
		Type:       ev.Key,
		TenantID:   ev.TenantID,
		OccurredAt: ev.CreatedAt.UTC().Format(time.RFC3339),
		Data:       ev.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	secret := ""
	if ep.Secret != "" {
		secret, err = w.Decrypter.Decrypt(ep.Secret)
		if err != nil {
			// degraded: deliver with an empty signing key rather than stall
			metrics.SecretDecryptFailures.Inc()
			logger.Log.Warn("deliver: secret decrypt failed, signing with empty key",
				zap.Int64("endpoint_id", ep.ID), zap.Error(err))
			secret = ""
		}
	}

	res := w.Sender.Send(ctx, sender.Request{
		URL:            ep.URL,
		Body:           body,
		Secret:         secret,
		IdempotencyKey: d.IdempotencyKey,
	})
	if res.DurationMs != nil {
		metrics.DeliveryDuration.Observe(float64(*res.DurationMs) / 1000)
	}

	ar := repository.AttemptResult{
		EventID:    job.EventID,
		EndpointID: job.EndpointID,
		Attempt:    job.Attempt,
		HTTPStatus: res.HTTPStatus,
		DurationMs: res.DurationMs,
		Signature:  res.Signature,
	}
	if res.Error != "" {
		ar.Error = &res.Error
	}

	switch res.Outcome {
	case sender.OutcomeDelivered:
		ar.Status = model.DeliveryOK
		if err := w.Deliveries.MarkResult(ctx, ar); err != nil {
			return fmt.Errorf("mark ok: %w", err)
		}
		metrics.DeliveriesTotal.WithLabelValues("ok").Inc()

	case sender.OutcomeGone:
		ar.Status = model.DeliverySkipped
		if err := w.Deliveries.MarkResult(ctx, ar); err != nil {
			return fmt.Errorf("mark skipped: %w", err)
		}
		// the subscriber told us it is permanently gone: stop matching it in
		// future fanouts, keep its history
		if err := w.Endpoints.Disable(ctx, ep.ID); err != nil {
			return fmt.Errorf("disable endpoint %d: %w", ep.ID, err)
		}
		logger.Log.Info("deliver: endpoint auto-disabled on 410",
			zap.Int64("endpoint_id", ep.ID), zap.Int64("tenant_id", ep.TenantID))
		metrics.DeliveriesTotal.WithLabelValues("skipped").Inc()

	case sender.OutcomeRejected:
		ar.Status = model.DeliveryFailed
		if err := w.Deliveries.MarkResult(ctx, ar); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()

	case sender.OutcomeRetry:
		if job.Attempt < w.MaxRetries {
			nextAt := time.Now().Add(sender.Backoff(job.Attempt, w.BackoffBase, w.BackoffJitter))
			next := model.DeliverJob{EventID: job.EventID, EndpointID: job.EndpointID, Attempt: job.Attempt + 1}
			// schedule before bumping the row: a schedule failure redelivers
			// this job at the current attempt, which the row still accepts.
			// If MarkRetry fails after, the duplicate attempt on redelivery
			// is absorbed by the ledger guards.
			if err := w.Scheduler.Schedule(ctx, next, nextAt); err != nil {
				return fmt.Errorf("schedule retry: %w", err)
			}
			if err := w.Deliveries.MarkRetry(ctx, ar, job.Attempt+1, nextAt); err != nil {
				return fmt.Errorf("mark retry: %w", err)
			}
			metrics.DeliveriesTotal.WithLabelValues("retried").Inc()
		} else {
			msg := fmt.Sprintf("max retries exhausted after attempt %d: %s", job.Attempt, res.Error)
			ar.Error = &msg
			ar.Status = model.DeliveryFailed
			if err := w.Deliveries.MarkResult(ctx, ar); err != nil {
				return fmt.Errorf("mark exhausted: %w", err)
			}
			metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		}
	}

	return nil
}
