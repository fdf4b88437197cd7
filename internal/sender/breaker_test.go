package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMicroBreakerOpensAtThreshold(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.True(t, b.TryAcquire())
		b.OnFailure()
	}
	assert.True(t, b.TryAcquire(), "still closed below threshold")
	b.OnFailure()

	assert.False(t, b.TryAcquire(), "open after threshold failures")
}

func TestMicroBreakerHalfOpenProbe(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)
	b.OnFailure()
	assert.False(t, b.TryAcquire())

	time.Sleep(20 * time.Millisecond)

	assert.True(t, b.TryAcquire(), "one probe after the open window")
	assert.False(t, b.TryAcquire(), "only one probe in flight")

	b.OnSuccess()
	assert.True(t, b.TryAcquire(), "closed again after a successful probe")
}

func TestMicroBreakerFailedProbeReopens(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)
	b.OnFailure()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.TryAcquire())
	b.OnFailure()

	assert.False(t, b.TryAcquire(), "reopened after a failed probe")
}

func TestMicroBreakerSuccessResetsCount(t *testing.T) {
	b := NewMicroBreaker(2, time.Minute)
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()

	assert.True(t, b.TryAcquire(), "success resets the consecutive failure count")
}

func TestBreakerRegistryPerHost(t *testing.T) {
	reg := NewBreakerRegistry(1, time.Minute)

	reg.Get("a.example.com").OnFailure()

	assert.False(t, reg.Get("a.example.com").TryAcquire())
	assert.True(t, reg.Get("b.example.com").TryAcquire(), "hosts do not share a breaker")
	assert.Same(t, reg.Get("b.example.com"), reg.Get("b.example.com"))
}
