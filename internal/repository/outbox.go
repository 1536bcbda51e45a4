package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/eventpay/payment-events/internal/model"
)

// NotificationsKafkaTopic is where the outbox relay publishes envelopes for
// the notifier worker.
const NotificationsKafkaTopic = "payments.notifications"

// OutboxRepository enqueues notification envelopes. The Debezium Outbox SMT
// relays rows to Kafka based on the `topic` column.
type OutboxRepository interface {
	// InsertNotification writes one envelope. If tx is nil, it opens and
	// commits an internal transaction; otherwise it uses the given tx so the
	// envelope commits atomically with the payment mutation.
	InsertNotification(ctx context.Context, tx *sqlx.Tx, n model.Notification) error
}

type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *OutboxRepositoryImpl) InsertNotification(ctx context.Context, tx *sqlx.Tx, n model.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, created_at)
		VALUES ('notification', ?, ?, ?, NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, n.ID, NotificationsKafkaTopic, payload)
		return err
	})
}
