package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBaseDelayFormula(t *testing.T) {
	base := 2 * time.Second

	assert.Equal(t, 2*time.Second, BaseDelay(1, base))
	assert.Equal(t, 4*time.Second, BaseDelay(2, base))
	assert.Equal(t, 8*time.Second, BaseDelay(3, base))
	assert.Equal(t, 256*time.Second, BaseDelay(8, base))
}

func TestBaseDelayMonotonic(t *testing.T) {
	base := 2 * time.Second
	for attempt := 1; attempt < 10; attempt++ {
		assert.Less(t, BaseDelay(attempt, base), BaseDelay(attempt+1, base))
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	base := 2 * time.Second
	jitter := 400 * time.Millisecond

	for i := 0; i < 100; i++ {
		d := Backoff(3, base, jitter)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.Less(t, d, 8*time.Second+jitter)
	}
}

func TestBackoffNoJitter(t *testing.T) {
	assert.Equal(t, 4*time.Second, Backoff(2, 2*time.Second, 0))
}
