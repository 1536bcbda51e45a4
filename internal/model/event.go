package model

import "encoding/json"

// ProviderEvent is a payment-provider notification as delivered by webhook
// or re-fetched during a dead-letter pass.
type ProviderEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"data"`
	Account string          `json:"account,omitempty"`
}
