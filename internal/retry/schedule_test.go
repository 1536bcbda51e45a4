package retry

import (
	"testing"
	"time"
)

func midpoint() float64 { return 0.5 }

func TestComputeDelay_ExponentialGrowth(t *testing.T) {
	p := DefaultWebhookPolicy()

	// rand pinned to 0.5 makes the multiplier exactly 1.0
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 300 * time.Millisecond},
		{1, 600 * time.Millisecond},
		{2, 1200 * time.Millisecond},
	}
	for _, tc := range cases {
		got := p.ComputeDelay(DelayInput{Attempt: tc.attempt, Rand: midpoint})
		if got != tc.want {
			t.Errorf("attempt %d: got %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestComputeDelay_JitterBounds(t *testing.T) {
	p := Policy{InitialDelay: time.Second, RateLimitDelay: 30 * time.Second}

	lo := p.ComputeDelay(DelayInput{Attempt: 2, Rand: func() float64 { return 0 }})
	hi := p.ComputeDelay(DelayInput{Attempt: 2, Rand: func() float64 { return 0.999 }})
	if lo != 2*time.Second {
		t.Errorf("low bound: got %s, want 2s", lo)
	}
	if hi < 2*time.Second || hi > 6*time.Second {
		t.Errorf("high bound out of [2s, 6s]: %s", hi)
	}
}

func TestComputeDelay_RetryAfterHintWins(t *testing.T) {
	p := DefaultWebhookPolicy()
	got := p.ComputeDelay(DelayInput{
		Attempt:           0,
		ErrorName:         "rate_limit_exceeded",
		RetryAfterSeconds: 2,
		Rand:              midpoint,
	})
	if got != 2*time.Second {
		t.Fatalf("retry-after hint: got %s, want 2s", got)
	}
}

func TestComputeDelay_RateLimitWithoutHint(t *testing.T) {
	p := DefaultWebhookPolicy()

	byName := p.ComputeDelay(DelayInput{Attempt: 3, ErrorName: "rate_limit_exceeded", Rand: midpoint})
	if byName != p.RateLimitDelay {
		t.Errorf("rate limit by name: got %s, want %s", byName, p.RateLimitDelay)
	}
	byStatus := p.ComputeDelay(DelayInput{Attempt: 3, StatusCode: 429, Rand: midpoint})
	if byStatus != p.RateLimitDelay {
		t.Errorf("rate limit by status: got %s, want %s", byStatus, p.RateLimitDelay)
	}
}

func TestComputeDelay_NegativeAttemptClamped(t *testing.T) {
	p := DefaultWebhookPolicy()
	got := p.ComputeDelay(DelayInput{Attempt: -3, Rand: midpoint})
	if got != p.InitialDelay {
		t.Fatalf("negative attempt: got %s, want %s", got, p.InitialDelay)
	}
}

func TestShouldRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3}

	if !p.ShouldRetry(Classification{Type: Transient}, 0) {
		t.Error("transient within budget should retry")
	}
	if !p.ShouldRetry(Classification{Type: Transient}, 2) {
		t.Error("transient at last slot should retry")
	}
	if p.ShouldRetry(Classification{Type: Transient}, 3) {
		t.Error("budget exhausted should not retry")
	}
	if p.ShouldRetry(Classification{Type: Permanent}, 0) {
		t.Error("permanent should never retry")
	}
}

func TestDefaultPoliciesDiverge(t *testing.T) {
	w, n := DefaultWebhookPolicy(), DefaultNotifierPolicy()
	if w.MaxAttempts >= n.MaxAttempts {
		t.Errorf("webhook budget %d should be tighter than notifier %d", w.MaxAttempts, n.MaxAttempts)
	}
	if w.InitialDelay >= n.InitialDelay {
		t.Errorf("webhook base delay %s should be shorter than notifier %s", w.InitialDelay, n.InitialDelay)
	}
}
