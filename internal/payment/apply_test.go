package payment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eventpay/payment-events/internal/model"
	"github.com/eventpay/payment-events/internal/repository"
)

type fakeRunner struct{}

func (fakeRunner) RunInTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	return fn(nil)
}

type fakePayments struct {
	rows     map[string]model.PaymentRecord
	inserted []model.PaymentRecord
}

func newFakePayments(rows ...model.PaymentRecord) *fakePayments {
	f := &fakePayments{rows: make(map[string]model.PaymentRecord)}
	for _, r := range rows {
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakePayments) ListByAttendance(context.Context, string) ([]model.PaymentRecord, error) {
	return nil, nil
}

func (f *fakePayments) Insert(_ context.Context, _ *sqlx.Tx, p model.PaymentRecord) error {
	f.inserted = append(f.inserted, p)
	f.rows[p.ID] = p
	return nil
}

func (f *fakePayments) UpdateStatus(_ context.Context, _ *sqlx.Tx, id string, status model.PaymentStatus, paidAt *time.Time) error {
	r, ok := f.rows[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	r.Status = status
	if paidAt != nil {
		r.PaidAt = paidAt
	}
	f.rows[id] = r
	return nil
}

type fakeOutbox struct {
	notes []model.Notification
}

func (f *fakeOutbox) InsertNotification(_ context.Context, _ *sqlx.Tx, n model.Notification) error {
	f.notes = append(f.notes, n)
	return nil
}

func runHandler(t *testing.T, a *Applier, ev model.ProviderEvent) applyResult {
	t.Helper()
	res, err := a.HandlerFor(ev)(context.Background())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out applyResult
	if err := json.Unmarshal(res, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return out
}

func TestApplyHandler_UpdatesKnownPayment(t *testing.T) {
	payments := newFakePayments(model.PaymentRecord{
		ID: "pay_1", AttendanceID: "att_1", Status: model.PaymentPending,
	})
	outbox := &fakeOutbox{}
	a := NewApplier(fakeRunner{}, payments, outbox)

	out := runHandler(t, a, model.ProviderEvent{
		ID:      "evt_1",
		Type:    EventPaymentSucceeded,
		Payload: json.RawMessage(`{"payment_id":"pay_1","attendance_id":"att_1"}`),
	})

	if out.PaymentID != "pay_1" || out.Status != "paid" {
		t.Fatalf("result = %+v", out)
	}
	row := payments.rows["pay_1"]
	if row.Status != model.PaymentPaid || row.PaidAt == nil {
		t.Fatalf("row not updated: %+v", row)
	}
	if len(payments.inserted) != 0 {
		t.Fatalf("known payment must not be re-inserted: %v", payments.inserted)
	}
	if len(outbox.notes) != 1 || outbox.notes[0].EventID != "evt_1" {
		t.Fatalf("outbox = %+v", outbox.notes)
	}
}

func TestApplyHandler_UnknownPaymentIDCreatesRow(t *testing.T) {
	// the payload names a payment id we never recorded; the terminal
	// status must land in a new row, not vanish into a zero-row update
	payments := newFakePayments()
	outbox := &fakeOutbox{}
	a := NewApplier(fakeRunner{}, payments, outbox)

	out := runHandler(t, a, model.ProviderEvent{
		ID:      "evt_2",
		Type:    EventPaymentSucceeded,
		Payload: json.RawMessage(`{"payment_id":"pay_ghost","attendance_id":"att_2","method":"card","amount":2500}`),
	})

	if out.PaymentID != "pay_ghost" || out.Status != "paid" {
		t.Fatalf("result = %+v", out)
	}
	if len(payments.inserted) != 1 {
		t.Fatalf("inserted = %v", payments.inserted)
	}
	row := payments.rows["pay_ghost"]
	if row.Status != model.PaymentPaid || row.PaidAt == nil || row.AttendanceID != "att_2" || row.Amount != 2500 {
		t.Fatalf("created row = %+v", row)
	}
	if len(outbox.notes) != 1 {
		t.Fatalf("outbox = %+v", outbox.notes)
	}
}

func TestApplyHandler_EmptyPaymentIDGetsFreshULID(t *testing.T) {
	payments := newFakePayments()
	a := NewApplier(fakeRunner{}, payments, &fakeOutbox{})

	out := runHandler(t, a, model.ProviderEvent{
		ID:      "evt_3",
		Type:    EventPaymentFailed,
		Payload: json.RawMessage(`{"attendance_id":"att_3","method":"card"}`),
	})

	if out.PaymentID == "" || out.Status != "failed" {
		t.Fatalf("result = %+v", out)
	}
	row := payments.rows[out.PaymentID]
	if row.Status != model.PaymentFailed || row.PaidAt != nil {
		t.Fatalf("created row = %+v", row)
	}
}

func TestHandlerFor_UnknownTypeIgnored(t *testing.T) {
	a := NewApplier(fakeRunner{}, newFakePayments(), &fakeOutbox{})

	out := runHandler(t, a, model.ProviderEvent{ID: "evt_x", Type: "customer.created"})
	if !out.Ignored {
		t.Fatalf("result = %+v, want ignored", out)
	}
}

func TestApplyHandler_RejectsBadPayload(t *testing.T) {
	a := NewApplier(fakeRunner{}, newFakePayments(), &fakeOutbox{})

	cases := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{`},
		{"missing attendance", `{"payment_id":"pay_1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := a.HandlerFor(model.ProviderEvent{
				ID:      "evt_bad",
				Type:    EventPaymentSucceeded,
				Payload: json.RawMessage(tc.payload),
			})
			if _, err := h(context.Background()); err == nil {
				t.Fatal("expected validation error before any transaction")
			}
		})
	}
}
