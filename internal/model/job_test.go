package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The outbox relay, the retry scheduler, and the workers all exchange these
// payloads; the key names are a wire contract between them.
func TestJobWireKeys(t *testing.T) {
	b, err := json.Marshal(FanoutJob{EventID: "01HWZ"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_id":"01HWZ"}`, string(b))

	b, err = json.Marshal(DeliverJob{EventID: "01HWZ", EndpointID: 42, Attempt: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_id":"01HWZ","endpoint_id":42,"attempt":3}`, string(b))
}
