package sender

import (
	"sync"
	"time"
)

type state int

const (
	closed state = iota
	open
	halfOpen
)

// MicroBreaker short-circuits calls to a destination host that keeps failing
// at the network level, so workers do not burn their request timeout on a
// host that is known down.
type MicroBreaker struct {
	mu               sync.Mutex
	st               state
	consecutiveFails int
	failThreshold    int
	openFor          time.Duration
	nextTryAt        time.Time
	probeInFlight    bool
}

func NewMicroBreaker(threshold int, openFor time.Duration) *MicroBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 15 * time.Second
	}
	return &MicroBreaker{failThreshold: threshold, openFor: openFor}
}

func (b *MicroBreaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.st {
	case closed:
		return true
	case open:
		if now.After(b.nextTryAt) && !b.probeInFlight {
			b.st = halfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case halfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true
		}
		return false
	default:
		return true
	}
}

func (b *MicroBreaker) OnSuccess() {
	b.mu.Lock()
	b.consecutiveFails = 0
	b.st = closed
	b.probeInFlight = false
	b.mu.Unlock()
}

func (b *MicroBreaker) OnFailure() {
	b.mu.Lock()
	if b.st == halfOpen {
		b.st = open
		b.nextTryAt = time.Now().Add(b.openFor)
		b.probeInFlight = false
		b.mu.Unlock()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failThreshold {
		b.st = open
		b.nextTryAt = time.Now().Add(b.openFor)
	}

	b.mu.Unlock()
}

// BreakerRegistry keeps one breaker per destination host.
type BreakerRegistry struct {
	mu        sync.Mutex
	breakers  map[string]*MicroBreaker
	threshold int
	openFor   time.Duration
}

func NewBreakerRegistry(threshold int, openFor time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:  make(map[string]*MicroBreaker),
		threshold: threshold,
		openFor:   openFor,
	}
}

func (r *BreakerRegistry) Get(host string) *MicroBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	br, ok := r.breakers[host]
	if !ok {
		br = NewMicroBreaker(r.threshold, r.openFor)
		r.breakers[host] = br
	}
	return br
}
