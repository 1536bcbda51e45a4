package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/eventpay/payment-events/internal/kafka"
	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/notify"
)

// stubSource yields the same envelope until the context dies.
type stubSource struct {
	value []byte

	mu        sync.Mutex
	fetched   int
	committed int
}

func (s *stubSource) Fetch(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	s.mu.Lock()
	s.fetched++
	s.mu.Unlock()
	return kafka.Message{Value: s.value}, nil
}

func (s *stubSource) Commit(context.Context, kafka.Message) error {
	s.mu.Lock()
	s.committed++
	s.mu.Unlock()
	return nil
}

func (s *stubSource) commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

type stubSubs struct {
	subs []model.Subscriber
	err  error
}

func (s *stubSubs) ListActive(context.Context) ([]model.Subscriber, error) {
	return s.subs, s.err
}

const envelope = `{"id":"ntf_1","event_id":"evt_1","event_type":"payment_intent.succeeded","attendance_id":"att_1","status":"paid"}`

func TestNotifier_DeliversAndStops(t *testing.T) {
	var hits int
	var hitsMu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hitsMu.Lock()
		hits++
		hitsMu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	source := &stubSource{value: []byte(envelope)}
	subs := &stubSubs{subs: []model.Subscriber{{URL: srv.URL, Secret: "whsec", Status: "active"}}}
	w := NewNotifier(source, subs, notify.NewSender(time.Second, 3, time.Minute), nil)
	w.Workers = 2

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	// let some envelopes flow, then stop
	deadline := time.After(2 * time.Second)
	for source.commits() == 0 {
		select {
		case <-deadline:
			t.Fatal("no envelope delivered before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	// Run must return even with the channel buffer full; a fetcher stuck
	// on a send would hang here
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not shut down")
	}

	hitsMu.Lock()
	defer hitsMu.Unlock()
	if hits == 0 {
		t.Fatal("subscriber endpoint never hit")
	}
}

func TestDeliverOne_PoisonCommitted(t *testing.T) {
	source := &stubSource{}
	w := NewNotifier(source, &stubSubs{}, notify.NewSender(time.Second, 3, time.Minute), nil)

	w.deliverOne(context.Background(), kafka.Message{Value: []byte(`{broken`)})
	if source.commits() != 1 {
		t.Fatalf("poison envelope commits = %d, want 1", source.commits())
	}
}

func TestDeliverOne_SubscriberLookupFailureRedelivers(t *testing.T) {
	source := &stubSource{}
	subs := &stubSubs{err: errors.New("db down")}
	w := NewNotifier(source, subs, notify.NewSender(time.Second, 3, time.Minute), nil)

	w.deliverOne(context.Background(), kafka.Message{Value: []byte(envelope)})
	if source.commits() != 0 {
		t.Fatalf("offset committed despite lookup failure: %d", source.commits())
	}
}
