package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/hookrelay/hookrelay/internal/model"
	"github.com/redis/go-redis/v9"
)

const retryZSetKey = "hookrelay:schedule:deliver"

// RetryScheduler delays deliver jobs until their backoff expires. Jobs are
// ZADDed scored by due time (unix ms); the scheduler worker moves due members
// onto the deliver topic.
type RetryScheduler struct {
	rdb *redis.Client
	key string
}

func NewRetryScheduler(rdb *redis.Client) *RetryScheduler {
	return &RetryScheduler{rdb: rdb, key: retryZSetKey}
}

// Schedule parks a deliver job until at.
func (s *RetryScheduler) Schedule(ctx context.Context, job model.DeliverJob, at time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.rdb.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: payload,
	}).Err()
}

// Due returns up to limit jobs whose due time has passed, without removing
// them. Ack removes a member once it has been re-published; publish-then-Ack
// keeps the hand-off at-least-once.
func (s *RetryScheduler) Due(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
}

func (s *RetryScheduler) Ack(ctx context.Context, member string) error {
	return s.rdb.ZRem(ctx, s.key, member).Err()
}
