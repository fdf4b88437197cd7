package fanout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesPattern(t *testing.T) {
	cases := []struct {
		key     string
		pattern string
		want    bool
	}{
		{"message.created", "message.created", true},
		{"message.created", "message.*", true},
		{"message.created", "*", true},
		{"message.created", "ticket.*", false},
		{"message.created", "message.updated", false},
		// wildcard matches exactly one extra segment
		{"message.created.extra", "message.*", false},
		{"message.created.extra", "message.created.*", true},
		// the wildcard needs a non-empty segment after the dot
		{"message.", "message.*", false},
		{"message", "message.*", false},
		// no partial-segment prefix matching
		{"messages.created", "message.*", false},
		{"ticket.updated", "ticket.*", true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchesPattern(tc.key, tc.pattern),
			"key=%q pattern=%q", tc.key, tc.pattern)
	}
}

func TestMatchesAny(t *testing.T) {
	patterns := []string{"ticket.*", "message.created"}

	assert.True(t, MatchesAny("ticket.updated", patterns))
	assert.True(t, MatchesAny("message.created", patterns))
	assert.False(t, MatchesAny("campaign.started", patterns))
	assert.False(t, MatchesAny("ticket.updated", nil))
}
