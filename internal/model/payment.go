package model

import "time"

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentFailed   PaymentStatus = "failed"
	PaymentPaid     PaymentStatus = "paid"
	PaymentReceived PaymentStatus = "received"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentWaived   PaymentStatus = "waived"
)

func (s PaymentStatus) String() string { return string(s) }

// TerminalPaymentStatuses carry an authoritative completion timestamp
// (paid_at) that outranks row-update recency when resolving duplicates.
var TerminalPaymentStatuses = []PaymentStatus{
	PaymentPaid, PaymentReceived, PaymentRefunded, PaymentWaived,
}

// PaymentRecord is one payment row for an attendance. The application
// creates a new row per retry attempt instead of mutating in place, so
// several rows may coexist for one attendance_id; the resolver picks the
// canonical one. Rows are never deleted.
type PaymentRecord struct {
	ID           string        `db:"id"`
	AttendanceID string        `db:"attendance_id"`
	Method       string        `db:"method"`
	Status       PaymentStatus `db:"status"`
	Amount       int64         `db:"amount"`
	PaidAt       *time.Time    `db:"paid_at"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}
