package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Patterns is the set of event-key subscriptions of an endpoint, stored as a
// JSON array column. A pattern is an exact key, a namespace wildcard
// ("prefix.*"), or the global "*".
type Patterns []string

func (p Patterns) Value() (driver.Value, error) {
	if p == nil {
		p = Patterns{}
	}
	return json.Marshal(p)
}

func (p *Patterns) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = nil
		return nil
	default:
		return fmt.Errorf("patterns: cannot scan %T", src)
	}
}

// Endpoint is a subscriber's registered destination. This subsystem only ever
// mutates Enabled; everything else is owned by the integration-management side.
type Endpoint struct {
	ID            int64     `db:"id"`
	TenantID      int64     `db:"tenant_id"`
	URL           string    `db:"url"`
	EventPatterns Patterns  `db:"event_patterns"`
	Secret        string    `db:"secret"` // base64(nonce||ciphertext), empty when unset
	Enabled       bool      `db:"enabled"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
