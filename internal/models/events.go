package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a frame on the push channel
type EventType string

const (
	EventSync              EventType = "SYNC"
	EventCartUpdated       EventType = "CART_UPDATED"
	EventSessionStatus     EventType = "SESSION_STATUS"
	EventHighlighted       EventType = "HIGHLIGHTED"
	EventItemStatusChanged EventType = "ITEM_STATUS_CHANGED"
	EventTimeoutWarning    EventType = "TIMEOUT_WARNING"
	EventSessionTimeout    EventType = "SESSION_TIMEOUT"
	EventTimeoutExtended   EventType = "TIMEOUT_EXTENDED"
	EventSessionCancelled  EventType = "SESSION_CANCELLED"
)

// Event is the wire format for every frame pushed to session subscribers.
// The payload is kept as raw JSON so the same struct serves both the
// publishing and the consuming side.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID int64           `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	At        time.Time       `json:"at"`
}

// NewEvent builds an event, marshaling the payload immediately so a later
// mutation of the source value cannot change what subscribers see.
func NewEvent(eventType EventType, sessionID int64, payload interface{}) (Event, error) {
	ev := Event{
		Type:      eventType,
		SessionID: sessionID,
		At:        time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		ev.Payload = data
	}
	return ev, nil
}

// SyncPayload is the authoritative full-state snapshot sent as the first
// frame of every subscriber connection. Clients must replace local state
// with it, never merge.
type SyncPayload struct {
	Status SessionStatus `json:"status"`
	Cart   *CartState    `json:"cart"`
}

// StatusPayload accompanies SESSION_STATUS and SESSION_CANCELLED
type StatusPayload struct {
	Status SessionStatus `json:"status"`
}

// HighlightPayload accompanies HIGHLIGHTED
type HighlightPayload struct {
	BatchID       int64 `json:"batch_id"`
	IsHighlighted bool  `json:"is_highlighted"`
}

// ItemStatusPayload accompanies ITEM_STATUS_CHANGED
type ItemStatusPayload struct {
	CartItemID int64      `json:"cart_item_id"`
	NewStatus  ItemStatus `json:"new_status"`
}

// TimeoutWarningPayload accompanies TIMEOUT_WARNING
type TimeoutWarningPayload struct {
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// SessionTimeoutPayload accompanies SESSION_TIMEOUT
type SessionTimeoutPayload struct {
	Status SessionStatus `json:"status"`
}

// TimeoutExtendedPayload accompanies TIMEOUT_EXTENDED
type TimeoutExtendedPayload struct {
	NewExpiresAt     time.Time `json:"new_expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}
