package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eventpay/payment-events/internal/metrics"
	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/processor"
	"github.com/eventpay/payment-events/internal/provider"
)

// HandlerFor returns the business handler for a freshly re-fetched event.
type HandlerFor func(ev model.ProviderEvent) processor.Handler

// Report summarizes one dead-letter pass.
type Report struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
}

// RetryWorker scans failed processing records, applies the backoff gate,
// re-validates each event against the provider, and re-drives the
// idempotent processor. Overlapping invocations are safe: all mutation
// goes through the processor's at-most-once path.
type RetryWorker struct {
	// Dependencies
	Store      processor.Store
	Proc       *processor.Processor
	Fetcher    provider.EventFetcher
	HandlerFor HandlerFor
	Log        *zap.Logger

	// Behavior
	MaxRetries   int           // hard retry budget per event
	BaseInterval time.Duration // backoff unit: due after BaseInterval * 2^retryCount
	FetchTimeout time.Duration // bound on one provider re-fetch
	BatchLimit   int           // max candidates per pass
	StaleAfter   time.Duration // pending claims older than this are reclaimed
	Now          func() time.Time
}

// NewRetryWorker builds a worker with sane defaults.
func NewRetryWorker(store processor.Store, proc *processor.Processor, fetcher provider.EventFetcher, handlerFor HandlerFor, log *zap.Logger) *RetryWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryWorker{
		Store:        store,
		Proc:         proc,
		Fetcher:      fetcher,
		HandlerFor:   handlerFor,
		Log:          log,
		MaxRetries:   5,
		BaseInterval: 60 * time.Second,
		FetchTimeout: 10 * time.Second,
		BatchLimit:   100,
		StaleAfter:   15 * time.Minute,
		Now:          time.Now,
	}
}

// RunOnce performs a single pass. Per-candidate failures are isolated; an
// error is returned only when the scan itself is unavailable.
func (w *RetryWorker) RunOnce(ctx context.Context) (Report, error) {
	var rep Report

	// claims whose holder died stay pending forever without this
	if w.StaleAfter > 0 {
		n, err := w.Store.ReclaimStale(ctx, w.StaleAfter)
		if err != nil {
			w.Log.Warn("reclaim stale claims", zap.Error(err))
		} else if n > 0 {
			w.Log.Info("reclaimed stale claims", zap.Int64("count", n))
		}
	}

	records, err := w.Store.ListRetryable(ctx, w.MaxRetries, w.BatchLimit)
	if err != nil {
		return rep, fmt.Errorf("scan retryable events: %w", err)
	}

	now := w.Now()
	for _, rec := range records {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if !w.due(rec, now) {
			continue
		}
		w.retryOne(ctx, rec, &rep)
	}
	return rep, nil
}

// due gates a candidate on exponential backoff: BaseInterval * 2^retryCount
// since the last attempt. A record that has never been retried is due
// immediately.
func (w *RetryWorker) due(rec model.ProcessingRecord, now time.Time) bool {
	if rec.LastRetryAt == nil {
		return true
	}
	wait := w.BaseInterval << uint(rec.RetryCount)
	return now.Sub(*rec.LastRetryAt) >= wait
}

func (w *RetryWorker) retryOne(ctx context.Context, rec model.ProcessingRecord, rep *Report) {
	fctx, cancel := context.WithTimeout(ctx, w.FetchTimeout)
	ev, err := w.Fetcher.FetchEvent(fctx, rec.EventID)
	cancel()
	if err != nil {
		if errors.Is(err, provider.ErrEventNotFound) {
			// terminal regardless of remaining budget
			if derr := w.Store.MarkDeadLettered(ctx, rec.EventID, model.ReasonEventNotFound); derr != nil {
				w.Log.Error("dead-letter mark", zap.String("event_id", rec.EventID), zap.Error(derr))
				return
			}
			metrics.RetryAttemptsTotal.WithLabelValues("dead_lettered").Inc()
			w.Log.Warn("event dead-lettered: gone upstream", zap.String("event_id", rec.EventID))
			return
		}
		// fetch infrastructure hiccup: transient for this pass, next tick retries
		metrics.RetryAttemptsTotal.WithLabelValues("skipped").Inc()
		w.Log.Warn("event re-fetch failed",
			zap.String("event_id", rec.EventID),
			zap.Error(err),
		)
		return
	}

	meta := rec.Metadata
	if len(meta) == 0 && ev.Account != "" {
		meta, _ = json.Marshal(map[string]string{"account": ev.Account})
	}

	rep.Processed++
	_, err = w.Proc.Process(ctx, ev.ID, ev.Type, w.HandlerFor(ev), processor.Options{Metadata: meta})
	switch {
	case err == nil:
		rep.Succeeded++
		metrics.RetryAttemptsTotal.WithLabelValues("succeeded").Inc()
		w.Log.Info("event recovered",
			zap.String("event_id", ev.ID),
			zap.Int("retry_count", rec.RetryCount),
		)
	case errors.Is(err, processor.ErrInProgress):
		// another invocation holds the claim; nothing to do
		rep.Processed--
		metrics.RetryAttemptsTotal.WithLabelValues("skipped").Inc()
	default:
		// new error message persisted by the processor's failure path
		metrics.RetryAttemptsTotal.WithLabelValues("failed").Inc()
		w.Log.Warn("retry attempt failed",
			zap.String("event_id", ev.ID),
			zap.Int("retry_count", rec.RetryCount),
			zap.Error(err),
		)
	}
}

// Run blocks, executing a pass every interval until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Log.Info("retry worker started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			w.Log.Info("retry worker stopping")
			return nil
		case <-ticker.C:
			rep, err := w.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.Log.Error("retry pass failed", zap.Error(err))
				continue
			}
			if rep.Processed > 0 {
				w.Log.Info("retry pass complete",
					zap.Int("processed", rep.Processed),
					zap.Int("succeeded", rep.Succeeded),
				)
			}
		}
	}
}
