// Package event defines the domain events emitted by the approval service
// as quote approvals move through their lifecycle.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	ApprovalID string                 `json:"approval_id"`
	QuoteID    string                 `json:"quote_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// New creates a new domain event with an auto-generated ID and timestamp
func New(eventType Type, approvalID, quoteID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ApprovalID: approvalID,
		QuoteID:    quoteID,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}

// PayloadString retrieves a string value from the payload
func (e *Event) PayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
