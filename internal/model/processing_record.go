package model

import (
	"encoding/json"
	"time"
)

type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingSucceeded ProcessingStatus = "succeeded"
	ProcessingFailed    ProcessingStatus = "failed"
)

func (s ProcessingStatus) String() string { return string(s) }

func (s ProcessingStatus) Valid() bool {
	return s == ProcessingPending || s == ProcessingSucceeded || s == ProcessingFailed
}

// Terminal dead-letter reason written when the provider no longer knows the event.
const ReasonEventNotFound = "event_not_found"

// ProcessingRecord is the idempotency ledger: exactly one row per provider
// event id, created on first sight, never deleted. No transition leaves
// succeeded.
type ProcessingRecord struct {
	EventID      string           `db:"event_id"`
	EventType    string           `db:"event_type"`
	Status       ProcessingStatus `db:"status"`
	Result       json.RawMessage  `db:"result"`
	ErrorMessage *string          `db:"error_message"`
	RetryCount   int              `db:"retry_count"`
	LastRetryAt  *time.Time       `db:"last_retry_at"`
	DeadLettered bool             `db:"dead_lettered"`
	Metadata     json.RawMessage  `db:"metadata"`
	CreatedAt    time.Time        `db:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at"`
}
