package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/eventpay/payment-events/internal/model"
)

// ErrClaimConflict means another invocation won the claim race for this
// event id. Not user-visible: callers treat it as a benign no-op.
var ErrClaimConflict = errors.New("processing claim conflict")

// Store is the idempotency ledger. It is the single source of truth for
// "has this event already been applied"; no component may bypass it.
type Store interface {
	// Get returns the record for eventID, or (nil, nil) when none exists.
	Get(ctx context.Context, eventID string) (*model.ProcessingRecord, error)

	// Claim atomically moves eventID into pending: inserting a fresh record
	// when none exists, or flipping an existing failed record. It returns
	// retried=true for the failed→pending path. A record that is pending or
	// succeeded loses the race with ErrClaimConflict.
	Claim(ctx context.Context, eventID, eventType string, metadata json.RawMessage) (retried bool, err error)

	// MarkSucceeded records the terminal success with the cached result.
	MarkSucceeded(ctx context.Context, eventID string, result json.RawMessage) error

	// MarkFailed records a failure. retried=true additionally increments
	// retry_count and stamps last_retry_at; a first-sight failure leaves
	// retry_count at 0.
	MarkFailed(ctx context.Context, eventID, errMsg string, retried bool) error

	// MarkDeadLettered marks the record permanently failed with the given
	// reason, excluding it from every future due-scan.
	MarkDeadLettered(ctx context.Context, eventID, reason string) error

	// ListRetryable returns failed, non-dead-lettered records with
	// retry_count below maxRetries, oldest first.
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]model.ProcessingRecord, error)

	// ReclaimStale flips pending records untouched for longer than
	// olderThan back to failed, so a claim whose holder died becomes
	// visible to the retry scan again. Returns the number reclaimed.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
