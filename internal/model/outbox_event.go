package model

import "time"

// OutboxEvent is one row of the transactional outbox: a job recorded in the
// same transaction as the state it announces, published to Kafka by the relay.
type OutboxEvent struct {
	ID          int64      `db:"id"`
	Topic       string     `db:"topic"`
	Key         string     `db:"msg_key"` // kafka message key
	Payload     []byte     `db:"payload"`
	PublishedAt *time.Time `db:"published_at"`
	CreatedAt   time.Time  `db:"created_at"`
}
