package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eventpay/payment-events/internal/kafka"
	"github.com/eventpay/payment-events/internal/metrics"
	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/notify"
	"github.com/eventpay/payment-events/internal/repository"
	"github.com/eventpay/payment-events/internal/retry"
)

// Notifier:
// - fetches notification envelopes from Kafka (outbox relay),
// - fans out to active subscriber endpoints,
// - retries per-endpoint with the notifier retry policy.
// MessageSource is the consumer side of the notification topic. Satisfied
// by *kafka.Consumer; tests substitute a fake.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type Notifier struct {
	// Dependencies
	Consumer MessageSource
	Subs     repository.SubscribersRepository
	Sender   *notify.Sender
	Log      *zap.Logger

	// Behavior
	Policy  retry.Policy
	Workers int // goroutines delivering envelopes
}

// NewNotifier builds a notifier with sane defaults.
func NewNotifier(consumer MessageSource, subs repository.SubscribersRepository, sender *notify.Sender, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		Consumer: consumer,
		Subs:     subs,
		Sender:   sender,
		Log:      log,
		Policy:   retry.DefaultNotifierPolicy(),
		Workers:  16,
	}
}

// Run starts the notifier and blocks until ctx is cancelled and every
// goroutine has drained.
func (w *Notifier) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	var wg sync.WaitGroup

	// Fetcher goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(msgCh)
		for {
			m, err := w.Consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Warn("kafka fetch", zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			// the deliverers stop on cancellation, so the send must too
			select {
			case <-ctx.Done():
				return
			case msgCh <- m:
			}
		}
	}()

	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runDeliverer(ctx, msgCh)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Notifier) runDeliverer(ctx context.Context, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.deliverOne(ctx, m)
		}
	}
}

func (w *Notifier) deliverOne(ctx context.Context, m kafka.Message) {
	var n model.Notification
	if err := json.Unmarshal(m.Value, &n); err != nil || n.ID == "" {
		_ = w.Consumer.Commit(ctx, m) // poison → commit, skip
		w.Log.Warn("bad notification envelope", zap.Error(err))
		return
	}

	subs, err := w.Subs.ListActive(ctx)
	if err != nil {
		// leave the offset uncommitted; the envelope is redelivered
		w.Log.Error("list subscribers", zap.Error(err))
		return
	}

	for _, sub := range subs {
		w.deliverWithRetry(ctx, sub, n)
	}

	if err := w.Consumer.Commit(ctx, m); err != nil {
		w.Log.Warn("kafka commit", zap.Error(err))
	}
}

// deliverWithRetry drives one endpoint through the notifier policy:
// transient failures back off and retry in-process, permanent ones drop
// immediately. Endpoint health is the sender's breaker's problem.
func (w *Notifier) deliverWithRetry(ctx context.Context, sub model.Subscriber, n model.Notification) {
	for attempt := 0; ; attempt++ {
		err := w.Sender.Deliver(ctx, sub, n)
		if err == nil {
			metrics.NotificationsTotal.WithLabelValues("sent").Inc()
			return
		}

		c := retry.Classify(err)
		if !w.Policy.ShouldRetry(c, attempt+1) {
			metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
			w.Log.Warn("notification dropped",
				zap.String("notification_id", n.ID),
				zap.String("url", sub.URL),
				zap.String("error_type", string(c.Type)),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			return
		}

		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		delay := w.Policy.ComputeDelay(retry.DelayInput{
			Attempt:    attempt,
			ErrorName:  c.Name,
			StatusCode: c.StatusCode,
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
