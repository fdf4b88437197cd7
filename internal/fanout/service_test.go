package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/model"
)

type fakeEvents struct {
	events    map[string]*model.Event
	processed []string
	getErr    error
}

func (f *fakeEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.events[id], nil
}

func (f *fakeEvents) MarkProcessed(_ context.Context, id string) error {
	f.processed = append(f.processed, id)
	return nil
}

type fakeEndpoints struct {
	byTenant map[int64][]model.Endpoint
}

func (f *fakeEndpoints) ListEnabledByTenant(_ context.Context, tenantID int64) ([]model.Endpoint, error) {
	return f.byTenant[tenantID], nil
}

type fakeDeliveries struct {
	rows      map[string]*model.Delivery
	createErr error
}

func (f *fakeDeliveries) CreatePending(_ context.Context, d model.Delivery) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	if f.rows == nil {
		f.rows = map[string]*model.Delivery{}
	}
	key := model.IdempotencyKey(d.EventID, d.EndpointID)
	if _, ok := f.rows[key]; ok {
		return false, nil
	}
	d.Status = model.DeliveryPending
	d.Attempt = 1
	f.rows[key] = &d
	return true, nil
}

func (f *fakeDeliveries) GetByPair(_ context.Context, eventID string, endpointID int64) (*model.Delivery, error) {
	d, ok := f.rows[model.IdempotencyKey(eventID, endpointID)]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

type fakeEnqueuer struct {
	jobs     []model.DeliverJob
	failures int // fail this many calls before succeeding
}

func (f *fakeEnqueuer) EnqueueDeliver(_ context.Context, job model.DeliverJob) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func testEvent(id string, tenantID int64, key string) *model.Event {
	return &model.Event{
		ID:        id,
		TenantID:  tenantID,
		Key:       key,
		Payload:   json.RawMessage(`{"n":1}`),
		CreatedAt: time.Now(),
	}
}

func TestRunFansOutToMatchingEndpoints(t *testing.T) {
	events := &fakeEvents{events: map[string]*model.Event{
		"01HWZ": testEvent("01HWZ", 7, "message.created"),
	}}
	endpoints := &fakeEndpoints{byTenant: map[int64][]model.Endpoint{
		7: {
			{ID: 1, TenantID: 7, EventPatterns: model.Patterns{"message.*"}},
			{ID: 2, TenantID: 7, EventPatterns: model.Patterns{"ticket.*"}},
			{ID: 3, TenantID: 7, EventPatterns: model.Patterns{"*"}},
		},
	}}
	deliveries := &fakeDeliveries{}
	enq := &fakeEnqueuer{}

	err := New(events, endpoints, deliveries, enq).Run(context.Background(), "01HWZ")
	require.NoError(t, err)

	// endpoints 1 and 3 match, 2 does not
	require.Len(t, deliveries.rows, 2)
	assert.Contains(t, deliveries.rows, "01HWZ-1")
	assert.Contains(t, deliveries.rows, "01HWZ-3")

	require.Len(t, enq.jobs, 2)
	for _, j := range enq.jobs {
		assert.Equal(t, "01HWZ", j.EventID)
		assert.Equal(t, 1, j.Attempt)
	}

	assert.Equal(t, []string{"01HWZ"}, events.processed)
}

func TestRunIsIdempotent(t *testing.T) {
	events := &fakeEvents{events: map[string]*model.Event{
		"01HWZ": testEvent("01HWZ", 7, "message.created"),
	}}
	endpoints := &fakeEndpoints{byTenant: map[int64][]model.Endpoint{
		7: {{ID: 1, TenantID: 7, EventPatterns: model.Patterns{"*"}}},
	}}
	deliveries := &fakeDeliveries{}
	enq := &fakeEnqueuer{}
	svc := New(events, endpoints, deliveries, enq)

	require.NoError(t, svc.Run(context.Background(), "01HWZ"))

	// the pair settled in the meantime: a replayed run must not touch it
	deliveries.rows["01HWZ-1"].Status = model.DeliveryOK
	require.NoError(t, svc.Run(context.Background(), "01HWZ"))

	assert.Len(t, deliveries.rows, 1)
	assert.Len(t, enq.jobs, 1)
	assert.Equal(t, []string{"01HWZ", "01HWZ"}, events.processed)
}

func TestRunSkipsRowsPastFirstAttempt(t *testing.T) {
	events := &fakeEvents{events: map[string]*model.Event{
		"01HWZ": testEvent("01HWZ", 7, "message.created"),
	}}
	endpoints := &fakeEndpoints{byTenant: map[int64][]model.Endpoint{
		7: {{ID: 1, TenantID: 7, EventPatterns: model.Patterns{"*"}}},
	}}
	deliveries := &fakeDeliveries{}
	enq := &fakeEnqueuer{}
	svc := New(events, endpoints, deliveries, enq)

	require.NoError(t, svc.Run(context.Background(), "01HWZ"))

	// the row is waiting for a scheduled retry; a replayed run must not
	// enqueue a second attempt-1 job on top of it
	next := time.Now().Add(time.Minute)
	deliveries.rows["01HWZ-1"].Attempt = 2
	deliveries.rows["01HWZ-1"].NextAttemptAt = &next
	require.NoError(t, svc.Run(context.Background(), "01HWZ"))

	assert.Len(t, enq.jobs, 1)
}

func TestRunReplayRecoversUnenqueuedRow(t *testing.T) {
	events := &fakeEvents{events: map[string]*model.Event{
		"01HWZ": testEvent("01HWZ", 7, "message.created"),
	}}
	endpoints := &fakeEndpoints{byTenant: map[int64][]model.Endpoint{
		7: {{ID: 1, TenantID: 7, EventPatterns: model.Patterns{"*"}}},
	}}
	deliveries := &fakeDeliveries{}
	enq := &fakeEnqueuer{failures: 1}
	svc := New(events, endpoints, deliveries, enq)

	// first run: the row is created but the enqueue fails, so the job errors
	// out and the queue redelivers it
	require.Error(t, svc.Run(context.Background(), "01HWZ"))
	require.Len(t, deliveries.rows, 1)
	assert.Empty(t, enq.jobs)
	assert.Empty(t, events.processed)

	// the replay sees created=false but the row never got its deliver job;
	// it must be re-enqueued, not skipped
	require.NoError(t, svc.Run(context.Background(), "01HWZ"))

	require.Len(t, enq.jobs, 1)
	assert.Equal(t, model.DeliverJob{EventID: "01HWZ", EndpointID: 1, Attempt: 1}, enq.jobs[0])
	assert.Equal(t, []string{"01HWZ"}, events.processed)
}

func TestRunMissingEventDropsJob(t *testing.T) {
	events := &fakeEvents{events: map[string]*model.Event{}}
	deliveries := &fakeDeliveries{}
	enq := &fakeEnqueuer{}

	err := New(events, &fakeEndpoints{}, deliveries, enq).Run(context.Background(), "gone")

	require.NoError(t, err)
	assert.Empty(t, deliveries.rows)
	assert.Empty(t, enq.jobs)
	assert.Empty(t, events.processed)
}

func TestRunPropagatesStoreErrors(t *testing.T) {
	events := &fakeEvents{events: map[string]*model.Event{
		"01HWZ": testEvent("01HWZ", 7, "message.created"),
	}}
	endpoints := &fakeEndpoints{byTenant: map[int64][]model.Endpoint{
		7: {{ID: 1, TenantID: 7, EventPatterns: model.Patterns{"*"}}},
	}}
	deliveries := &fakeDeliveries{createErr: errors.New("db down")}

	err := New(events, endpoints, deliveries, &fakeEnqueuer{}).Run(context.Background(), "01HWZ")

	require.Error(t, err)
	assert.Empty(t, events.processed, "event must stay unprocessed so the job is redelivered")
}

func TestRunNoMatchingEndpoints(t *testing.T) {
	events := &fakeEvents{events: map[string]*model.Event{
		"01HWZ": testEvent("01HWZ", 7, "campaign.started"),
	}}
	endpoints := &fakeEndpoints{byTenant: map[int64][]model.Endpoint{
		7: {{ID: 1, TenantID: 7, EventPatterns: model.Patterns{"message.*"}}},
	}}
	deliveries := &fakeDeliveries{}
	enq := &fakeEnqueuer{}

	err := New(events, endpoints, deliveries, enq).Run(context.Background(), "01HWZ")

	require.NoError(t, err)
	assert.Empty(t, deliveries.rows)
	assert.Empty(t, enq.jobs)
	assert.Equal(t, []string{"01HWZ"}, events.processed, "processed even when nothing matches")
}
