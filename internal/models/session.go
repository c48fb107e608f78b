package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle status of a live shopping session
type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionActive    SessionStatus = "ACTIVE"
	SessionPaused    SessionStatus = "PAUSED"
	SessionEnded     SessionStatus = "ENDED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// validTransitions encodes the session state machine. SCHEDULED starts a
// session, ACTIVE and PAUSED alternate freely, ENDED and CANCELLED are
// terminal.
var validTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled: {SessionActive, SessionCancelled},
	SessionActive:    {SessionPaused, SessionEnded, SessionCancelled},
	SessionPaused:    {SessionActive, SessionEnded, SessionCancelled},
	SessionEnded:     {},
	SessionCancelled: {},
}

// IsValid returns true if the status is a known session status
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionScheduled, SessionActive, SessionPaused, SessionEnded, SessionCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses a session can never leave
func (s SessionStatus) IsTerminal() bool {
	return s == SessionEnded || s == SessionCancelled
}

// IsLive returns true while the session owns an expiry clock
func (s SessionStatus) IsLive() bool {
	return s == SessionActive || s == SessionPaused
}

// CanTransitionTo returns true if the state machine allows moving from s to next
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session represents one live shopping engagement between a staff host and a client
type Session struct {
	ID               int64         `json:"id" db:"id"`
	RoomCode         string        `json:"room_code" db:"room_code"`
	ClientID         int64         `json:"client_id" db:"client_id"`
	HostUserID       int64         `json:"host_user_id" db:"host_user_id"`
	Title            string        `json:"title" db:"title"`
	InternalNotes    string        `json:"internal_notes,omitempty" db:"internal_notes"`
	Status           SessionStatus `json:"status" db:"status"`
	ScheduledAt      *time.Time    `json:"scheduled_at,omitempty" db:"scheduled_at"`
	ExpiresAt        *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty" db:"started_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
	ConvertedOrderID *int64        `json:"converted_order_id,omitempty" db:"converted_order_id"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// ValidateTransition checks a requested status change against the state
// machine. Terminal sessions report ErrSessionClosed so callers can
// distinguish "already over" from a plain illegal hop.
func (s *Session) ValidateTransition(next SessionStatus) error {
	if !next.IsValid() {
		return NewValidationError("status", "unknown session status")
	}
	if s.Status.IsTerminal() {
		return ErrSessionClosed
	}
	if !s.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: s.Status, To: next}
	}
	return nil
}

// ApplyTransition validates the move and mutates the session in place,
// maintaining the lifecycle timestamps and the expiry-clock invariant
// (expires_at is defined only while the session is ACTIVE or PAUSED).
func (s *Session) ApplyTransition(next SessionStatus, now time.Time) error {
	if err := s.ValidateTransition(next); err != nil {
		return err
	}
	s.Status = next
	switch next {
	case SessionActive:
		if s.StartedAt == nil {
			startedAt := now
			s.StartedAt = &startedAt
		}
	case SessionEnded, SessionCancelled:
		endedAt := now
		s.EndedAt = &endedAt
		s.ExpiresAt = nil
	}
	return nil
}

// RemainingSeconds reports how long until the session expires, floored at zero.
// Returns false if the session has no expiry clock.
func (s *Session) RemainingSeconds(now time.Time) (int64, bool) {
	if s.ExpiresAt == nil || !s.Status.IsLive() {
		return 0, false
	}
	remaining := int64(s.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// SessionCreateRequest represents the data needed to open a new session
type SessionCreateRequest struct {
	ClientID      int64      `json:"client_id"`
	HostUserID    int64      `json:"host_user_id"`
	Title         string     `json:"title"`
	InternalNotes string     `json:"internal_notes"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
}

// Validate validates session creation data
func (req *SessionCreateRequest) Validate() error {
	if req.ClientID <= 0 {
		return NewValidationError("client_id", "client id is required")
	}
	if req.HostUserID <= 0 {
		return NewValidationError("host_user_id", "host user id is required")
	}
	if len(req.Title) > 255 {
		return NewValidationError("title", "title must be less than 255 characters")
	}
	return nil
}

// NewRoomCode generates the shareable code clients use to join a session
func NewRoomCode() string {
	return uuid.NewString()
}
