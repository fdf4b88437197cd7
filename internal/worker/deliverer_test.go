package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/hookrelay/hookrelay/internal/repository"
	"github.com/hookrelay/hookrelay/internal/sender"
)

type fakeEventLoader struct {
	events map[string]*model.Event
}

func (f *fakeEventLoader) GetByID(_ context.Context, id string) (*model.Event, error) {
	return f.events[id], nil
}

type fakeEndpointLoader struct {
	endpoints map[int64]*model.Endpoint
	disabled  []int64
}

func (f *fakeEndpointLoader) GetByID(_ context.Context, id int64) (*model.Endpoint, error) {
	return f.endpoints[id], nil
}

func (f *fakeEndpointLoader) Disable(_ context.Context, id int64) error {
	f.disabled = append(f.disabled, id)
	if ep, ok := f.endpoints[id]; ok {
		ep.Enabled = false
	}
	return nil
}

// fakeLedger mirrors the repository guards: result writes only land on
// pending rows, so a replayed job cannot rewrite a terminal row.
type fakeLedger struct {
	rows map[string]*model.Delivery
}

func (f *fakeLedger) key(eventID string, endpointID int64) string {
	return model.IdempotencyKey(eventID, endpointID)
}

func (f *fakeLedger) GetByPair(_ context.Context, eventID string, endpointID int64) (*model.Delivery, error) {
	d, ok := f.rows[f.key(eventID, endpointID)]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeLedger) MarkResult(_ context.Context, r repository.AttemptResult) error {
	d, ok := f.rows[f.key(r.EventID, r.EndpointID)]
	if !ok || d.Status != model.DeliveryPending {
		return nil
	}
	d.Attempt = r.Attempt
	d.Status = r.Status
	d.HTTPStatus = r.HTTPStatus
	d.DurationMs = r.DurationMs
	d.Signature = &r.Signature
	d.Error = r.Error
	d.NextAttemptAt = nil
	if r.Status == model.DeliveryOK {
		now := time.Now()
		d.DeliveredAt = &now
	}
	return nil
}

func (f *fakeLedger) MarkRetry(_ context.Context, r repository.AttemptResult, nextAttempt int, nextAttemptAt time.Time) error {
	d, ok := f.rows[f.key(r.EventID, r.EndpointID)]
	if !ok || d.Status != model.DeliveryPending {
		return nil
	}
	d.Attempt = nextAttempt
	d.HTTPStatus = r.HTTPStatus
	d.Signature = &r.Signature
	d.Error = r.Error
	d.NextAttemptAt = &nextAttemptAt
	return nil
}

// fakePoster returns scripted results in order, repeating the last one.
type fakePoster struct {
	results  []sender.Result
	requests []sender.Request
}

func (f *fakePoster) Send(_ context.Context, req sender.Request) sender.Result {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	r := f.results[i]
	r.Signature = "v1=deadbeef"
	return r
}

func status(res ...sender.Result) *fakePoster { return &fakePoster{results: res} }

func httpResult(outcome sender.Outcome, code int) sender.Result {
	ms := int64(12)
	return sender.Result{Outcome: outcome, HTTPStatus: &code, DurationMs: &ms}
}

type fakeDecrypter struct {
	plain string
	err   error
}

func (f *fakeDecrypter) Decrypt(string) (string, error) { return f.plain, f.err }

type fakeScheduler struct {
	jobs     []model.DeliverJob
	at       []time.Time
	failures int // fail this many calls before succeeding
}

func (f *fakeScheduler) Schedule(_ context.Context, job model.DeliverJob, at time.Time) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("redis unavailable")
	}
	f.jobs = append(f.jobs, job)
	f.at = append(f.at, at)
	return nil
}

type delivererFixture struct {
	w         *Deliverer
	ledger    *fakeLedger
	endpoints *fakeEndpointLoader
	poster    *fakePoster
	scheduler *fakeScheduler
}

func newDelivererFixture(t *testing.T, poster *fakePoster) *delivererFixture {
	t.Helper()

	ev := &model.Event{
		ID:        "01HWZ",
		TenantID:  7,
		Key:       "message.created",
		Payload:   json.RawMessage(`{"n":1}`),
		CreatedAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	ep := &model.Endpoint{ID: 42, TenantID: 7, URL: "https://hooks.example.com/in", Secret: "sealed", Enabled: true}
	ledger := &fakeLedger{rows: map[string]*model.Delivery{
		"01HWZ-42": {
			EventID:        "01HWZ",
			EndpointID:     42,
			TenantID:       7,
			IdempotencyKey: "01HWZ-42",
			Attempt:        1,
			Status:         model.DeliveryPending,
		},
	}}
	endpoints := &fakeEndpointLoader{endpoints: map[int64]*model.Endpoint{42: ep}}
	scheduler := &fakeScheduler{}

	return &delivererFixture{
		w: &Deliverer{
			Events:        &fakeEventLoader{events: map[string]*model.Event{"01HWZ": ev}},
			Endpoints:     endpoints,
			Deliveries:    ledger,
			Sender:        poster,
			Decrypter:     &fakeDecrypter{plain: "whsec_test"},
			Scheduler:     scheduler,
			Workers:       1,
			MaxRetries:    8,
			BackoffBase:   2 * time.Second,
			BackoffJitter: 0,
		},
		ledger:    ledger,
		endpoints: endpoints,
		poster:    poster,
		scheduler: scheduler,
	}
}

func (fx *delivererFixture) row() *model.Delivery {
	return fx.ledger.rows["01HWZ-42"]
}

func TestProcessJobDelivered(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeDelivered, 200)))

	err := fx.w.ProcessJob(context.Background(), model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1})
	require.NoError(t, err)

	row := fx.row()
	assert.Equal(t, model.DeliveryOK, row.Status)
	assert.Equal(t, 1, row.Attempt)
	require.NotNil(t, row.HTTPStatus)
	assert.Equal(t, 200, *row.HTTPStatus)
	assert.NotNil(t, row.DurationMs)
	assert.NotNil(t, row.DeliveredAt)
	assert.Nil(t, row.NextAttemptAt)
	assert.Empty(t, fx.scheduler.jobs)

	// the request carried the decrypted secret and the pair's idempotency key
	require.Len(t, fx.poster.requests, 1)
	req := fx.poster.requests[0]
	assert.Equal(t, "https://hooks.example.com/in", req.URL)
	assert.Equal(t, "whsec_test", req.Secret)
	assert.Equal(t, "01HWZ-42", req.IdempotencyKey)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(req.Body, &env))
	assert.Equal(t, "01HWZ", env.ID)
	assert.Equal(t, "message.created", env.Type)
	assert.Equal(t, int64(7), env.TenantID)
	assert.Equal(t, "2026-01-15T10:00:00Z", env.OccurredAt)
}

func TestProcessJobGoneDisablesEndpoint(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeGone, 410)))

	err := fx.w.ProcessJob(context.Background(), model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1})
	require.NoError(t, err)

	assert.Equal(t, model.DeliverySkipped, fx.row().Status)
	assert.Nil(t, fx.row().DeliveredAt)
	assert.Equal(t, []int64{42}, fx.endpoints.disabled)
	assert.Empty(t, fx.scheduler.jobs)
}

func TestProcessJobRejectedIsTerminal(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeRejected, 404)))

	err := fx.w.ProcessJob(context.Background(), model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1})
	require.NoError(t, err)

	assert.Equal(t, model.DeliveryFailed, fx.row().Status)
	assert.Empty(t, fx.scheduler.jobs)
	assert.Empty(t, fx.endpoints.disabled)
}

func TestProcessJobRetrySchedulesBackoff(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeRetry, 503)))

	before := time.Now()
	err := fx.w.ProcessJob(context.Background(), model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1})
	require.NoError(t, err)

	row := fx.row()
	assert.Equal(t, model.DeliveryPending, row.Status)
	assert.Equal(t, 2, row.Attempt)
	require.NotNil(t, row.NextAttemptAt)

	require.Len(t, fx.scheduler.jobs, 1)
	assert.Equal(t, model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 2}, fx.scheduler.jobs[0])
	// attempt 1 with base 2s and no jitter parks the job 2s out
	assert.WithinDuration(t, before.Add(2*time.Second), fx.scheduler.at[0], 500*time.Millisecond)
}

func TestProcessJobScheduleFailureKeepsRowRetryable(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeRetry, 503)))
	fx.scheduler.failures = 1

	job := model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1}

	// the schedule fails, so the job errors out uncommitted and the row must
	// still be at attempt 1 so the redelivered job is not dropped as stale
	require.Error(t, fx.w.ProcessJob(context.Background(), job))
	row := fx.row()
	assert.Equal(t, model.DeliveryPending, row.Status)
	assert.Equal(t, 1, row.Attempt)
	assert.Empty(t, fx.scheduler.jobs)

	// redelivery of the same attempt retries the whole transition
	require.NoError(t, fx.w.ProcessJob(context.Background(), job))

	row = fx.row()
	assert.Equal(t, model.DeliveryPending, row.Status)
	assert.Equal(t, 2, row.Attempt)
	require.Len(t, fx.scheduler.jobs, 1)
	assert.Equal(t, model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 2}, fx.scheduler.jobs[0])
	assert.Len(t, fx.poster.requests, 2, "the redelivered attempt re-sends")
}

func TestProcessJobRetriesUntilSuccess(t *testing.T) {
	// three 429s, then a 200
	fx := newDelivererFixture(t, status(
		httpResult(sender.OutcomeRetry, 429),
		httpResult(sender.OutcomeRetry, 429),
		httpResult(sender.OutcomeRetry, 429),
		httpResult(sender.OutcomeDelivered, 200),
	))

	job := model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1}
	for {
		require.NoError(t, fx.w.ProcessJob(context.Background(), job))
		if len(fx.scheduler.jobs) < len(fx.poster.requests) {
			break // nothing new scheduled, the attempt settled the row
		}
		job = fx.scheduler.jobs[len(fx.scheduler.jobs)-1]
	}

	row := fx.row()
	assert.Equal(t, model.DeliveryOK, row.Status)
	assert.Equal(t, 4, row.Attempt)
	assert.NotNil(t, row.DeliveredAt)
	assert.Len(t, fx.poster.requests, 4)
}

func TestProcessJobExhaustsRetries(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeRetry, 503)))
	fx.w.MaxRetries = 3

	job := model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1}
	for i := 0; i < 3; i++ {
		require.NoError(t, fx.w.ProcessJob(context.Background(), job))
		if len(fx.scheduler.jobs) > i {
			job = fx.scheduler.jobs[i]
		}
	}

	row := fx.row()
	assert.Equal(t, model.DeliveryFailed, row.Status)
	require.NotNil(t, row.Error)
	assert.Contains(t, *row.Error, "max retries exhausted")
	assert.Len(t, fx.poster.requests, 3, "exactly max-retries attempts")
	assert.Len(t, fx.scheduler.jobs, 2, "the final attempt schedules nothing")
}

func TestProcessJobSkipsTerminalRow(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeDelivered, 200)))
	fx.row().Status = model.DeliveryOK

	err := fx.w.ProcessJob(context.Background(), model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 2})

	require.NoError(t, err)
	assert.Empty(t, fx.poster.requests, "terminal rows never trigger a send")
}

func TestProcessJobSkipsStaleJob(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeDelivered, 200)))
	fx.row().Attempt = 3

	err := fx.w.ProcessJob(context.Background(), model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 2})

	require.NoError(t, err)
	assert.Empty(t, fx.poster.requests, "a replayed older attempt is dropped")
}

func TestProcessJobDropsMissingRow(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeDelivered, 200)))
	delete(fx.ledger.rows, "01HWZ-42")

	err := fx.w.ProcessJob(context.Background(), model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1})

	require.NoError(t, err)
	assert.Empty(t, fx.poster.requests)
}

func TestProcessJobDecryptFailureSignsWithEmptyKey(t *testing.T) {
	fx := newDelivererFixture(t, status(httpResult(sender.OutcomeDelivered, 200)))
	fx.w.Decrypter = &fakeDecrypter{err: fmt.Errorf("cipher: message authentication failed")}

	err := fx.w.ProcessJob(context.Background(), model.DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 1})
	require.NoError(t, err)

	require.Len(t, fx.poster.requests, 1)
	assert.Empty(t, fx.poster.requests[0].Secret)
	assert.Equal(t, model.DeliveryOK, fx.row().Status)
}
