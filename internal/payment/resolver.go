package payment

import (
	"time"

	"github.com/eventpay/payment-events/internal/model"
)

// ResolveCanonical picks the record that represents the current truth among
// duplicate payment rows for one attendance. Records in a terminal status
// outrank non-terminal ones outright: a completed charge stays canonical
// even when an abandoned pending row was touched more recently. Within the
// same tier the latest effective time wins, ties broken by the later
// created_at. Returns nil when no record carries any timestamp at all.
func ResolveCanonical(records []model.PaymentRecord, terminal []model.PaymentStatus) *model.PaymentRecord {
	term := make(map[model.PaymentStatus]bool, len(terminal))
	for _, s := range terminal {
		term[s] = true
	}

	var best *model.PaymentRecord
	var bestAt time.Time
	bestTerminal := false

	for i := range records {
		r := &records[i]
		isTerm := term[r.Status]
		at, ok := effectiveTime(r, isTerm)
		if !ok {
			continue
		}
		if best != nil {
			// terminal precedence before any timestamp comparison
			if bestTerminal && !isTerm {
				continue
			}
			if bestTerminal == isTerm &&
				at.Before(bestAt) {
				continue
			}
			if bestTerminal == isTerm &&
				at.Equal(bestAt) && !r.CreatedAt.After(best.CreatedAt) {
				continue
			}
		}
		best = r
		bestAt = at
		bestTerminal = isTerm
	}
	return best
}

// effectiveTime derives "when this record last meaningfully changed".
// Terminal: paid_at, then updated_at, then created_at; non-terminal skips
// paid_at since it carries no authority there.
func effectiveTime(r *model.PaymentRecord, terminal bool) (time.Time, bool) {
	if terminal && r.PaidAt != nil && !r.PaidAt.IsZero() {
		return *r.PaidAt, true
	}
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt, true
	}
	if !r.CreatedAt.IsZero() {
		return r.CreatedAt, true
	}
	return time.Time{}, false
}
