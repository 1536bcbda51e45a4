package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eventpay/payment-events/internal/model"
)

// ErrPaymentNotFound is returned by UpdateStatus when no payment row
// matches the given id.
var ErrPaymentNotFound = errors.New("payment not found")

// PaymentsRepository persists payment rows. Rows are append-mostly: the
// application creates a new row per checkout attempt and webhooks mutate
// status, so readers must resolve duplicates per attendance.
type PaymentsRepository interface {
	ListByAttendance(ctx context.Context, attendanceID string) ([]model.PaymentRecord, error)
	Insert(ctx context.Context, tx *sqlx.Tx, p model.PaymentRecord) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status model.PaymentStatus, paidAt *time.Time) error
}

type PaymentsRepositoryImpl struct {
	db *sqlx.DB
}

func NewPaymentsRepository(db *sqlx.DB) *PaymentsRepositoryImpl {
	return &PaymentsRepositoryImpl{db: db}
}

var _ PaymentsRepository = (*PaymentsRepositoryImpl)(nil)

func (r *PaymentsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *PaymentsRepositoryImpl) ListByAttendance(ctx context.Context, attendanceID string) ([]model.PaymentRecord, error) {
	var rows []model.PaymentRecord
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, attendance_id, method, status, amount, paid_at, created_at, updated_at
		  FROM payments
		 WHERE attendance_id = ?
		 ORDER BY created_at ASC
	`, attendanceID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PaymentsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, p model.PaymentRecord) error {
	const q = `
		INSERT INTO payments
		    (id, attendance_id, method, status, amount, paid_at, created_at, updated_at)
		VALUES
		    (?,  ?,             ?,      ?,      ?,      ?,       NOW(),      NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			p.ID, p.AttendanceID, p.Method, p.Status.String(), p.Amount, p.PaidAt,
		)
		return err
	})
}

func (r *PaymentsRepositoryImpl) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status model.PaymentStatus, paidAt *time.Time) error {
	const q = `
		UPDATE payments
		   SET status = ?, paid_at = COALESCE(?, paid_at), updated_at = NOW()
		 WHERE id = ?
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, status.String(), paidAt, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrPaymentNotFound
		}
		return nil
	})
}
