package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eventpay/payment-events/internal/metrics"
	"github.com/eventpay/payment-events/internal/model"
)

// ErrInProgress means a concurrent invocation currently holds the claim for
// the same event id. Policy here is fail-fast: the caller gets this sentinel
// instead of waiting. If the claim holder dies, the record stays pending
// until the retry worker's stale-claim reclaim flips it back to failed and
// the normal retry path picks it up.
var ErrInProgress = errors.New("event already in progress")

// Handler applies the business effect of one event and returns a
// serializable result. The processor treats it as opaque: only its
// success/failure outcome matters.
type Handler func(ctx context.Context) (json.RawMessage, error)

// Outcome is what Process returns: the handler result (cached on replays)
// and whether this delivery was a duplicate of an already-applied event.
type Outcome struct {
	Result           json.RawMessage
	AlreadyProcessed bool
}

type Options struct {
	Metadata json.RawMessage // free-form context persisted with the record
}

// Processor wraps an arbitrary side-effecting handler with the exactly-once
// guarantee. All mutation of the ledger goes through here.
type Processor struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{store: store, log: log}
}

// Process applies handler for eventID at most once. Replays of a succeeded
// event return the cached result without re-executing side effects; a
// failed event is re-attempted (this is also the dead-letter re-drive path).
func (p *Processor) Process(ctx context.Context, eventID, eventType string, handler Handler, opts Options) (Outcome, error) {
	if eventID == "" {
		return Outcome{}, errors.New("processor: empty event id")
	}

	rec, err := p.store.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get processing record %s: %w", eventID, err)
	}
	if rec != nil {
		switch rec.Status {
		case model.ProcessingSucceeded:
			metrics.EventsTotal.WithLabelValues("duplicate", eventType).Inc()
			return Outcome{Result: rec.Result, AlreadyProcessed: true}, nil
		case model.ProcessingPending:
			return Outcome{}, ErrInProgress
		}
	}

	retried, err := p.store.Claim(ctx, eventID, eventType, opts.Metadata)
	if err != nil {
		if errors.Is(err, ErrClaimConflict) {
			// lost the race; the winner may have finished in the meantime
			return p.afterLostRace(ctx, eventID, eventType)
		}
		return Outcome{}, fmt.Errorf("claim %s: %w", eventID, err)
	}

	result, herr := handler(ctx)
	if herr != nil {
		if merr := p.store.MarkFailed(ctx, eventID, herr.Error(), retried); merr != nil {
			p.log.Error("mark failed", zap.String("event_id", eventID), zap.Error(merr))
		}
		metrics.EventsTotal.WithLabelValues("failed", eventType).Inc()
		p.log.Warn("event handler failed",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Bool("retried", retried),
			zap.Error(herr),
		)
		return Outcome{}, herr
	}

	if err := p.store.MarkSucceeded(ctx, eventID, result); err != nil {
		return Outcome{}, fmt.Errorf("mark succeeded %s: %w", eventID, err)
	}
	metrics.EventsTotal.WithLabelValues("succeeded", eventType).Inc()
	return Outcome{Result: result}, nil
}

func (p *Processor) afterLostRace(ctx context.Context, eventID, eventType string) (Outcome, error) {
	rec, err := p.store.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get after claim conflict %s: %w", eventID, err)
	}
	if rec != nil && rec.Status == model.ProcessingSucceeded {
		metrics.EventsTotal.WithLabelValues("duplicate", eventType).Inc()
		return Outcome{Result: rec.Result, AlreadyProcessed: true}, nil
	}
	return Outcome{}, ErrInProgress
}
