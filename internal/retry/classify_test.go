package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/eventpay/payment-events/internal/provider"
)

func TestClassify_SymbolicCodesBeatStatus(t *testing.T) {
	cases := []struct {
		code string
		// a status that would classify the other way if it were consulted
		status int
		want   ErrorType
	}{
		{provider.CodeRateLimit, 400, Transient},
		{provider.CodeLockTimeout, 400, Transient},
		{provider.CodeIdempotencyInUse, 400, Transient},
		{provider.CodeQuotaExceeded, 500, Permanent},
	}
	for _, tc := range cases {
		err := &provider.APIError{StatusCode: tc.status, Code: tc.code, Message: "boom"}
		got := Classify(err)
		if got.Type != tc.want {
			t.Errorf("code %q: got %s, want %s", tc.code, got.Type, tc.want)
		}
		if got.Name != tc.code {
			t.Errorf("code %q: name not carried through, got %q", tc.code, got.Name)
		}
	}
}

func TestClassify_StatusCodeFallback(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorType
	}{
		{500, Transient},
		{503, Transient},
		{429, Transient},
		{400, Permanent},
		{404, Permanent},
		{422, Permanent},
	}
	for _, tc := range cases {
		got := Classify(&provider.APIError{StatusCode: tc.status, Code: "something_else"})
		if got.Type != tc.want {
			t.Errorf("status %d: got %s, want %s", tc.status, got.Type, tc.want)
		}
		if got.StatusCode != tc.status {
			t.Errorf("status %d: not carried through, got %d", tc.status, got.StatusCode)
		}
	}
}

func TestClassify_WrappedAPIError(t *testing.T) {
	inner := &provider.APIError{StatusCode: 402, Code: "card_declined", Message: "declined"}
	got := Classify(fmt.Errorf("fetching event: %w", inner))
	if got.Type != Permanent {
		t.Fatalf("wrapped 402 should be permanent, got %s", got.Type)
	}
}

type statusErr struct{ status int }

func (e statusErr) Error() string   { return fmt.Sprintf("delivery failed with %d", e.status) }
func (e statusErr) HTTPStatus() int { return e.status }

func TestClassify_HTTPStatusCarrier(t *testing.T) {
	if got := Classify(statusErr{status: 503}); got.Type != Transient {
		t.Errorf("503 carrier: got %s, want transient", got.Type)
	}
	if got := Classify(statusErr{status: 410}); got.Type != Permanent {
		t.Errorf("410 carrier: got %s, want permanent", got.Type)
	}
}

func TestClassify_Timeouts(t *testing.T) {
	got := Classify(fmt.Errorf("fetch: %w", context.DeadlineExceeded))
	if got.Type != Transient || got.Name != "timeout" {
		t.Fatalf("deadline exceeded: got %+v", got)
	}
}

type fakeNetErr struct{ timeout bool }

func (e fakeNetErr) Error() string   { return "conn reset" }
func (e fakeNetErr) Timeout() bool   { return e.timeout }
func (e fakeNetErr) Temporary() bool { return true }

func TestClassify_NetError(t *testing.T) {
	got := Classify(fakeNetErr{timeout: true})
	if got.Type != Transient || got.Name != "network_error" {
		t.Fatalf("net error: got %+v", got)
	}
}

func TestClassify_Total(t *testing.T) {
	// every shape must come back classified, nothing may panic
	inputs := []error{
		nil,
		errors.New("plain"),
		fmt.Errorf("wrapped: %w", errors.New("inner")),
		&provider.APIError{},
	}
	for _, err := range inputs {
		got := Classify(err)
		if got.Type != Transient && got.Type != Permanent {
			t.Errorf("input %v: classification has no type", err)
		}
	}
	if got := Classify(errors.New("plain")); got.Type != Transient {
		t.Errorf("unknown error should default transient, got %s", got.Type)
	}
}
