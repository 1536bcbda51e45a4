package model

// Notification is the payload published to Kafka (via the Debezium outbox
// SMT) after an event is applied, consumed by the notifier worker.
type Notification struct {
	ID           string `json:"id"`           // notification ULID
	EventID      string `json:"event_id"`     // originating provider event
	EventType    string `json:"event_type"`
	AttendanceID string `json:"attendance_id"`
	Status       string `json:"status"` // resulting payment status
}
