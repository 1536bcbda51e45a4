package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/processor"
)

const mysqlErrDuplicateEntry = 1062

// ProcessingRepositoryImpl is the sqlx-backed idempotency ledger.
type ProcessingRepositoryImpl struct {
	db *sqlx.DB
}

// NewProcessingRepository constructs a ProcessingRepositoryImpl.
func NewProcessingRepository(db *sqlx.DB) *ProcessingRepositoryImpl {
	return &ProcessingRepositoryImpl{db: db}
}

var _ processor.Store = (*ProcessingRepositoryImpl)(nil)

func (r *ProcessingRepositoryImpl) Get(ctx context.Context, eventID string) (*model.ProcessingRecord, error) {
	var rec model.ProcessingRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT event_id, event_type, status, result, error_message,
		       retry_count, last_retry_at, dead_lettered, metadata,
		       created_at, updated_at
		  FROM processing_records
		 WHERE event_id = ? LIMIT 1
	`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Claim is the atomic "no record or failed record → pending" transition.
// The primary key on event_id makes the insert the claim itself; losing
// the insert race falls through to a conditional flip that only matches a
// failed record, so pending and succeeded records never re-run a handler.
func (r *ProcessingRepositoryImpl) Claim(ctx context.Context, eventID, eventType string, metadata json.RawMessage) (bool, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_records
		    (event_id, event_type, status, retry_count, metadata, created_at, updated_at)
		VALUES
		    (?, ?, 'pending', 0, ?, NOW(), NOW())
	`, eventID, eventType, nullableJSON(metadata))
	if err == nil {
		return false, nil
	}

	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlErrDuplicateEntry {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_records
		   SET status = 'pending', updated_at = NOW()
		 WHERE event_id = ? AND status = 'failed'
	`, eventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, processor.ErrClaimConflict
	}
	return true, nil
}

func (r *ProcessingRepositoryImpl) MarkSucceeded(ctx context.Context, eventID string, result json.RawMessage) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_records
		   SET status = 'succeeded', result = ?, error_message = NULL, updated_at = NOW()
		 WHERE event_id = ? AND status = 'pending'
	`, nullableJSON(result), eventID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("event %s not in pending state", eventID)
	}
	return nil
}

func (r *ProcessingRepositoryImpl) MarkFailed(ctx context.Context, eventID, errMsg string, retried bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE processing_records
		   SET status = 'failed',
		       error_message = ?,
		       retry_count  = retry_count + IF(?, 1, 0),
		       last_retry_at = IF(?, NOW(), last_retry_at),
		       updated_at = NOW()
		 WHERE event_id = ? AND status = 'pending'
	`, errMsg, retried, retried, eventID)
	return err
}

func (r *ProcessingRepositoryImpl) MarkDeadLettered(ctx context.Context, eventID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE processing_records
		   SET status = 'failed', error_message = ?, dead_lettered = 1, updated_at = NOW()
		 WHERE event_id = ? AND status <> 'succeeded'
	`, reason, eventID)
	return err
}

func (r *ProcessingRepositoryImpl) ListRetryable(ctx context.Context, maxRetries, limit int) ([]model.ProcessingRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []model.ProcessingRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT event_id, event_type, status, result, error_message,
		       retry_count, last_retry_at, dead_lettered, metadata,
		       created_at, updated_at
		  FROM processing_records
		 WHERE status = 'failed' AND dead_lettered = 0 AND retry_count < ?
		 ORDER BY updated_at ASC
		 LIMIT ?
	`, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// ReclaimStale recovers claims abandoned by a dead holder. A pending row
// only moves here, never through Claim, so a live handler keeps its claim
// as long as olderThan outlasts the slowest handler.
func (r *ProcessingRepositoryImpl) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_records
		   SET status = 'failed', error_message = 'claim expired', updated_at = NOW()
		 WHERE status = 'pending'
		   AND updated_at < DATE_SUB(NOW(), INTERVAL ? SECOND)
	`, int64(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// nullableJSON maps an empty payload to SQL NULL instead of an empty string,
// which MySQL's JSON columns reject.
func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
