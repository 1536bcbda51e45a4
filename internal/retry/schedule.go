package retry

import (
	"math/rand"
	"time"
)

// Policy tunes one retry call site. Two sites share this scheduler with
// deliberately divergent tuning: the webhook dead-letter pass and the
// notification delivery worker.
type Policy struct {
	MaxAttempts    int
	InitialDelay   time.Duration // backoff unit for attempt 0
	RateLimitDelay time.Duration // fixed delay for rate limits without a hint
}

func DefaultWebhookPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   300 * time.Millisecond,
		RateLimitDelay: 5 * time.Second,
	}
}

func DefaultNotifierPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialDelay:   time.Second,
		RateLimitDelay: 30 * time.Second,
	}
}

// ShouldRetry reports whether another attempt is worthwhile: only transient
// failures retry, and only while budget remains.
func (p Policy) ShouldRetry(c Classification, attempt int) bool {
	return c.Type == Transient && attempt < p.MaxAttempts
}

// DelayInput carries what ComputeDelay needs about the failed attempt.
// Rand is injectable so backoff is deterministic under test; nil falls back
// to the global source.
type DelayInput struct {
	Attempt           int
	ErrorName         string
	StatusCode        int
	RetryAfterSeconds int
	Rand              func() float64
}

// ComputeDelay returns how long to wait before the next attempt. A provider
// retry-after hint wins for rate limits; a rate limit without a hint gets
// the fixed RateLimitDelay; everything else gets exponential backoff with
// multiplicative jitter in [0.5x, 1.5x].
func (p Policy) ComputeDelay(in DelayInput) time.Duration {
	if in.ErrorName == "rate_limit_exceeded" || in.StatusCode == 429 {
		if in.RetryAfterSeconds > 0 {
			return time.Duration(in.RetryAfterSeconds) * time.Second
		}
		return p.RateLimitDelay
	}

	attempt := in.Attempt
	if attempt < 0 {
		attempt = 0
	}
	base := p.InitialDelay << uint(attempt)

	rnd := in.Rand
	if rnd == nil {
		rnd = rand.Float64
	}
	return time.Duration(float64(base) * (0.5 + rnd()))
}
