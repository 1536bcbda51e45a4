package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/processor"
	"github.com/eventpay/payment-events/internal/repository"
	"github.com/eventpay/payment-events/internal/util"
)

// Event types the pipeline applies. Anything else is acknowledged and
// ignored so the provider stops redelivering it.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded   = "charge.refunded"
)

// Applier owns the business effect of one provider event: mutating payment
// rows and enqueueing the notification envelope in a single transaction.
type Applier struct {
	runner   repository.TxRunner
	payments repository.PaymentsRepository
	outbox   repository.OutboxRepository
}

func NewApplier(runner repository.TxRunner, payments repository.PaymentsRepository, outbox repository.OutboxRepository) *Applier {
	return &Applier{runner: runner, payments: payments, outbox: outbox}
}

// eventData is the slice of the provider payload the handlers care about.
type eventData struct {
	PaymentID    string `json:"payment_id"`
	AttendanceID string `json:"attendance_id"`
	Method       string `json:"method"`
	Amount       int64  `json:"amount"`
}

// applyResult is the serializable handler outcome cached by the processor
// and returned verbatim on duplicate delivery.
type applyResult struct {
	PaymentID    string `json:"payment_id"`
	AttendanceID string `json:"attendance_id"`
	Status       string `json:"status"`
	Ignored      bool   `json:"ignored,omitempty"`
}

// HandlerFor returns the processor handler for ev. The processor treats the
// handler as opaque; all idempotency lives outside it.
func (a *Applier) HandlerFor(ev model.ProviderEvent) processor.Handler {
	switch ev.Type {
	case EventPaymentSucceeded:
		return a.applyHandler(ev, model.PaymentPaid)
	case EventPaymentFailed:
		return a.applyHandler(ev, model.PaymentFailed)
	case EventChargeRefunded:
		return a.applyHandler(ev, model.PaymentRefunded)
	default:
		return func(ctx context.Context) (json.RawMessage, error) {
			return json.Marshal(applyResult{Ignored: true})
		}
	}
}

func (a *Applier) applyHandler(ev model.ProviderEvent, status model.PaymentStatus) processor.Handler {
	return func(ctx context.Context) (json.RawMessage, error) {
		var data eventData
		if err := json.Unmarshal(ev.Payload, &data); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		if data.AttendanceID == "" {
			return nil, fmt.Errorf("event %s: missing attendance_id", ev.ID)
		}

		var paidAt *time.Time
		if status == model.PaymentPaid || status == model.PaymentReceived {
			now := time.Now().UTC()
			paidAt = &now
		}

		paymentID := data.PaymentID

		err := a.runner.RunInTx(ctx, func(tx *sqlx.Tx) error {
			if paymentID != "" {
				err := a.payments.UpdateStatus(ctx, tx, paymentID, status, paidAt)
				if errors.Is(err, repository.ErrPaymentNotFound) {
					// the provider names a charge we never recorded;
					// create the row under its id so later events match
					err = a.insertPayment(ctx, tx, paymentID, data, status, paidAt)
				}
				if err != nil {
					return fmt.Errorf("apply payment %s: %w", paymentID, err)
				}
			} else {
				paymentID = util.New()
				if err := a.insertPayment(ctx, tx, paymentID, data, status, paidAt); err != nil {
					return fmt.Errorf("insert payment: %w", err)
				}
			}

			err := a.outbox.InsertNotification(ctx, tx, model.Notification{
				ID:           util.New(),
				EventID:      ev.ID,
				EventType:    ev.Type,
				AttendanceID: data.AttendanceID,
				Status:       status.String(),
			})
			if err != nil {
				return fmt.Errorf("insert outbox: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		return json.Marshal(applyResult{
			PaymentID:    paymentID,
			AttendanceID: data.AttendanceID,
			Status:       status.String(),
		})
	}
}

func (a *Applier) insertPayment(ctx context.Context, tx *sqlx.Tx, id string, data eventData, status model.PaymentStatus, paidAt *time.Time) error {
	return a.payments.Insert(ctx, tx, model.PaymentRecord{
		ID:           id,
		AttendanceID: data.AttendanceID,
		Method:       data.Method,
		Status:       status,
		Amount:       data.Amount,
		PaidAt:       paidAt,
	})
}
