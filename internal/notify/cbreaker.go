package notify

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// EndpointBreaker guards one subscriber URL. After threshold consecutive
// delivery failures the endpoint is cut off for openFor; the first caller
// past the deadline gets a single probe, and its outcome decides whether
// the endpoint reopens for everyone or stays cut off.
type EndpointBreaker struct {
	url       string
	threshold int
	openFor   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	state   breakerState
	fails   int
	retryAt time.Time
	probing bool
}

func NewEndpointBreaker(url string, threshold int, openFor time.Duration) *EndpointBreaker {
	return &EndpointBreaker{
		url:       url,
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
	}
}

func (b *EndpointBreaker) URL() string { return b.url }

// State reports the current state name, for logs.
func (b *EndpointBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// Ready reports whether a delivery attempt to this endpoint would be let
// through right now, without consuming the probe slot.
func (b *EndpointBreaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		return b.now().After(b.retryAt) && !b.probing
	case stateHalfOpen:
		return !b.probing
	default:
		return true
	}
}

// TryAcquire claims the right to attempt a delivery. In open or half-open
// state at most one probe is in flight at a time.
func (b *EndpointBreaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		if b.now().After(b.retryAt) && !b.probing {
			b.state = stateHalfOpen
			b.probing = true
			return true
		}
		return false
	case stateHalfOpen:
		if !b.probing {
			b.probing = true
			return true
		}
		return false
	default:
		return true
	}
}

func (b *EndpointBreaker) OnSuccess() {
	b.mu.Lock()
	b.fails = 0
	b.state = stateClosed
	b.probing = false
	b.mu.Unlock()
}

func (b *EndpointBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		// failed probe: cut off again for a full window
		b.state = stateOpen
		b.retryAt = b.now().Add(b.openFor)
		b.probing = false
		return
	}

	b.fails++
	if b.fails >= b.threshold {
		b.state = stateOpen
		b.retryAt = b.now().Add(b.openFor)
	}
}
