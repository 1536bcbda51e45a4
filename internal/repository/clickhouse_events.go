package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/eventpay/payment-events/internal/model"
)

// CHEventsRepository lists the processing audit trail from ClickHouse
// (replicated from MySQL by CDC; the final view, not the hot ledger).
type CHEventsRepository interface {
	List(ctx context.Context, eventType string, status model.ProcessingStatus, limit, offset int) ([]model.ProcessingRecord, error)
}

type chEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHEventsRepository(ch *sqlx.DB) CHEventsRepository {
	return &chEventsRepository{ch: ch}
}

func (r *chEventsRepository) List(ctx context.Context, eventType string, status model.ProcessingStatus, limit, offset int) ([]model.ProcessingRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT event_id, event_type, status, error_message, retry_count,
		       dead_lettered, created_at, updated_at
		FROM payev.processing_records_latest
		WHERE 1 = 1
	`
	var args []any

	if eventType != "" {
		q += " AND event_type = ?"
		args = append(args, eventType)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.ProcessingRecord
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
