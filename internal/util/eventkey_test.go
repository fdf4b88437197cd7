package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEventKey(t *testing.T) {
	valid := []string{
		"message.created",
		"ticket.status.changed",
		"order_v2.paid",
		"a.b",
	}
	for _, k := range valid {
		assert.True(t, ValidEventKey(k), k)
	}

	invalid := []string{
		"",
		"message",
		"message.",
		".created",
		"Message.Created",
		"message..created",
		"message.*",
		"message created",
		strings.Repeat("a", 200) + ".b",
	}
	for _, k := range invalid {
		assert.False(t, ValidEventKey(k), k)
	}
}

func TestNormalizeEventKey(t *testing.T) {
	assert.Equal(t, "message.created", NormalizeEventKey("  Message.Created "))
}
