package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/eventpay/payment-events/internal/model"
)

// memStore mirrors the MySQL claim semantics in memory: one row per event
// id, claim succeeds only on insert or on failed→pending.
type memStore struct {
	mu   sync.Mutex
	recs map[string]*model.ProcessingRecord
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*model.ProcessingRecord)}
}

func (s *memStore) Get(_ context.Context, eventID string) (*model.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[eventID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) Claim(_ context.Context, eventID, eventType string, metadata json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[eventID]
	if !ok {
		s.recs[eventID] = &model.ProcessingRecord{
			EventID:   eventID,
			EventType: eventType,
			Status:    model.ProcessingPending,
			Metadata:  metadata,
			CreatedAt: time.Now(),
		}
		return false, nil
	}
	if r.Status != model.ProcessingFailed {
		return false, ErrClaimConflict
	}
	r.Status = model.ProcessingPending
	return true, nil
}

func (s *memStore) MarkSucceeded(_ context.Context, eventID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[eventID]
	if !ok || r.Status != model.ProcessingPending {
		return errors.New("record not in pending state")
	}
	r.Status = model.ProcessingSucceeded
	r.Result = result
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, eventID, errMsg string, retried bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[eventID]
	if !ok {
		return errors.New("record not found")
	}
	r.Status = model.ProcessingFailed
	r.ErrorMessage = &errMsg
	if retried {
		r.RetryCount++
		now := time.Now()
		r.LastRetryAt = &now
	}
	return nil
}

func (s *memStore) MarkDeadLettered(_ context.Context, eventID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[eventID]
	if !ok {
		return errors.New("record not found")
	}
	r.Status = model.ProcessingFailed
	r.ErrorMessage = &reason
	r.DeadLettered = true
	return nil
}

func (s *memStore) ReclaimStale(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (s *memStore) ListRetryable(_ context.Context, maxRetries, limit int) ([]model.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ProcessingRecord
	for _, r := range s.recs {
		if r.Status == model.ProcessingFailed && !r.DeadLettered && r.RetryCount < maxRetries {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func okHandler(result string, calls *int) Handler {
	return func(context.Context) (json.RawMessage, error) {
		*calls++
		return json.RawMessage(result), nil
	}
}

func TestProcess_FirstDelivery(t *testing.T) {
	store := newMemStore()
	p := New(store, nil)

	calls := 0
	out, err := p.Process(context.Background(), "evt_1", "payment_intent.succeeded",
		okHandler(`{"applied":true}`, &calls), Options{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
	if out.AlreadyProcessed {
		t.Fatal("first delivery flagged as duplicate")
	}
	if string(out.Result) != `{"applied":true}` {
		t.Fatalf("result = %s", out.Result)
	}
}

func TestProcess_DuplicateReturnsCachedResult(t *testing.T) {
	store := newMemStore()
	p := New(store, nil)

	calls := 0
	h := okHandler(`{"payment_id":"pay_1"}`, &calls)
	if _, err := p.Process(context.Background(), "evt_1", "t", h, Options{}); err != nil {
		t.Fatalf("first: %v", err)
	}
	out, err := p.Process(context.Background(), "evt_1", "t", h, Options{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if calls != 1 {
		t.Fatalf("side effect ran %d times, want 1", calls)
	}
	if !out.AlreadyProcessed {
		t.Fatal("replay not flagged as duplicate")
	}
	if string(out.Result) != `{"payment_id":"pay_1"}` {
		t.Fatalf("cached result = %s", out.Result)
	}
}

func TestProcess_ConcurrentDeliveries(t *testing.T) {
	store := newMemStore()
	p := New(store, nil)

	var mu sync.Mutex
	calls := 0
	handler := func(context.Context) (json.RawMessage, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return json.RawMessage(`{}`), nil
	}

	const n = 16
	var wg sync.WaitGroup
	succeeded := 0
	inProgress := 0
	var resMu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Process(context.Background(), "evt_race", "t", handler, Options{})
			resMu.Lock()
			defer resMu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInProgress):
				inProgress++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("handler ran %d times under contention, want 1", calls)
	}
	// every loser fails fast or reads the winner's cached result
	if succeeded+inProgress != n {
		t.Fatalf("succeeded=%d in_progress=%d, want total %d", succeeded, inProgress, n)
	}
	if succeeded < 1 {
		t.Fatal("no invocation succeeded")
	}
}

func TestProcess_PendingFailsFast(t *testing.T) {
	store := newMemStore()
	if _, err := store.Claim(context.Background(), "evt_held", "t", nil); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	p := New(store, nil)
	calls := 0
	_, err := p.Process(context.Background(), "evt_held", "t", okHandler(`{}`, &calls), Options{})
	if !errors.Is(err, ErrInProgress) {
		t.Fatalf("got %v, want ErrInProgress", err)
	}
	if calls != 0 {
		t.Fatal("handler must not run while another invocation holds the claim")
	}
}

func TestProcess_FailureRecordedAndRetryable(t *testing.T) {
	store := newMemStore()
	p := New(store, nil)

	boom := errors.New("provider exploded")
	failing := func(context.Context) (json.RawMessage, error) { return nil, boom }

	_, err := p.Process(context.Background(), "evt_f", "t", failing, Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want handler error", err)
	}

	rec, _ := store.Get(context.Background(), "evt_f")
	if rec.Status != model.ProcessingFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.RetryCount != 0 {
		t.Fatalf("first failure retry_count = %d, want 0", rec.RetryCount)
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage != "provider exploded" {
		t.Fatalf("error message = %v", rec.ErrorMessage)
	}

	// the failed record is re-claimable and the retry increments the counter
	calls := 0
	out, err := p.Process(context.Background(), "evt_f", "t", okHandler(`{"ok":1}`, &calls), Options{})
	if err != nil || calls != 1 {
		t.Fatalf("retry: err=%v calls=%d", err, calls)
	}
	if out.AlreadyProcessed {
		t.Fatal("retry of a failed event is not a duplicate")
	}
	rec, _ = store.Get(context.Background(), "evt_f")
	if rec.Status != model.ProcessingSucceeded {
		t.Fatalf("status after retry = %s", rec.Status)
	}
}

func TestProcess_FailedRetryIncrementsCount(t *testing.T) {
	store := newMemStore()
	p := New(store, nil)

	failing := func(context.Context) (json.RawMessage, error) {
		return nil, errors.New("still down")
	}
	for i := 0; i < 3; i++ {
		if _, err := p.Process(context.Background(), "evt_r", "t", failing, Options{}); err == nil {
			t.Fatal("expected failure")
		}
	}
	rec, _ := store.Get(context.Background(), "evt_r")
	// first sight leaves 0, each re-claim adds 1
	if rec.RetryCount != 2 {
		t.Fatalf("retry_count = %d, want 2", rec.RetryCount)
	}
	if rec.LastRetryAt == nil {
		t.Fatal("last_retry_at not stamped on retry")
	}
}

func TestProcess_NoResurrectionAfterSuccess(t *testing.T) {
	store := newMemStore()
	p := New(store, nil)

	calls := 0
	if _, err := p.Process(context.Background(), "evt_s", "t", okHandler(`{}`, &calls), Options{}); err != nil {
		t.Fatalf("first: %v", err)
	}

	// even a handler that would fail must never run again
	failing := func(context.Context) (json.RawMessage, error) {
		t.Fatal("handler ran for a succeeded event")
		return nil, nil
	}
	out, err := p.Process(context.Background(), "evt_s", "t", failing, Options{})
	if err != nil || !out.AlreadyProcessed {
		t.Fatalf("replay after success: out=%+v err=%v", out, err)
	}
	rec, _ := store.Get(context.Background(), "evt_s")
	if rec.Status != model.ProcessingSucceeded {
		t.Fatalf("succeeded record mutated to %s", rec.Status)
	}
}

func TestProcess_EmptyEventID(t *testing.T) {
	p := New(newMemStore(), nil)
	if _, err := p.Process(context.Background(), "", "t", okHandler(`{}`, new(int)), Options{}); err == nil {
		t.Fatal("empty event id must be rejected")
	}
}
