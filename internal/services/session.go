package services

import (
	"context"
	"log"
	"time"

	"live-shopping-platform/internal/models"
	"live-shopping-platform/internal/repositories"
)

// SessionService owns the session lifecycle: creation, status transitions
// through the state machine, and the full-state snapshots that seed new
// subscriber connections.
type SessionService struct {
	store           repositories.SessionStore
	publisher       EventPublisher
	locks           *SessionLocks
	sessionDuration time.Duration
}

// NewSessionService creates a new session lifecycle service
func NewSessionService(store repositories.SessionStore, publisher EventPublisher, locks *SessionLocks, sessionDuration time.Duration) *SessionService {
	return &SessionService{
		store:           store,
		publisher:       publisher,
		locks:           locks,
		sessionDuration: sessionDuration,
	}
}

// CreateSession opens a new session. A scheduled time keeps it SCHEDULED;
// otherwise it starts ACTIVE immediately with the default expiry clock.
func (s *SessionService) CreateSession(ctx context.Context, req *models.SessionCreateRequest) (*models.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		RoomCode:      models.NewRoomCode(),
		ClientID:      req.ClientID,
		HostUserID:    req.HostUserID,
		Title:         req.Title,
		InternalNotes: req.InternalNotes,
		Status:        models.SessionScheduled,
		ScheduledAt:   req.ScheduledAt,
		CreatedAt:     now,
	}
	if session.Title == "" {
		session.Title = "Live Shopping Session"
	}

	if req.ScheduledAt == nil {
		startedAt := now
		expiresAt := now.Add(s.sessionDuration)
		session.Status = models.SessionActive
		session.StartedAt = &startedAt
		session.ExpiresAt = &expiresAt
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	log.Printf("Session %d created for client %d (status %s, room %s)",
		session.ID, session.ClientID, session.Status, session.RoomCode)
	return session, nil
}

// GetSession retrieves a session by ID
func (s *SessionService) GetSession(ctx context.Context, sessionID int64) (*models.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// ListSessions retrieves sessions matching the filters
func (s *SessionService) ListSessions(ctx context.Context, filters repositories.SessionFilters) ([]*models.Session, error) {
	return s.store.ListSessions(ctx, filters)
}

// UpdateStatus moves the session along the state machine and broadcasts the
// change. Activating a session that has no expiry clock arms the default one.
func (s *SessionService) UpdateStatus(ctx context.Context, sessionID int64, next models.SessionStatus) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.store.TransitionSession(ctx, sessionID, next)
	if err != nil {
		return nil, err
	}

	if next == models.SessionActive && session.ExpiresAt == nil {
		expiresAt := time.Now().Add(s.sessionDuration)
		if err := s.store.SetSessionExpiry(ctx, sessionID, &expiresAt); err != nil {
			return nil, err
		}
		session.ExpiresAt = &expiresAt
	}

	s.publishStatus(session)
	return session, nil
}

// EndForTimeout force-ends an expired session. The transition commits at
// most once however many expiry checks race, because the store rejects a
// second transition out of ENDED.
func (s *SessionService) EndForTimeout(ctx context.Context, sessionID int64) (*models.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.store.TransitionSession(ctx, sessionID, models.SessionEnded)
	if err != nil {
		return nil, err
	}
	s.publishStatus(session)
	return session, nil
}

// Snapshot builds the authoritative SYNC payload for a subscriber. It takes
// the session lock so the status and cart it pairs can never be torn by a
// concurrent mutation.
func (s *SessionService) Snapshot(ctx context.Context, sessionID int64) (*models.SyncPayload, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListCartItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.SyncPayload{
		Status: session.Status,
		Cart:   models.ComputeCartState(sessionID, items),
	}, nil
}

func (s *SessionService) publishStatus(session *models.Session) {
	event, err := models.NewEvent(models.EventSessionStatus, session.ID, &models.StatusPayload{Status: session.Status})
	if err != nil {
		log.Printf("Failed to build SESSION_STATUS event for session %d: %v", session.ID, err)
		return
	}
	s.publisher.Publish(session.ID, event)

	if session.Status == models.SessionCancelled {
		cancelled, err := models.NewEvent(models.EventSessionCancelled, session.ID, &models.StatusPayload{Status: session.Status})
		if err != nil {
			log.Printf("Failed to build SESSION_CANCELLED event for session %d: %v", session.ID, err)
			return
		}
		s.publisher.Publish(session.ID, cancelled)
	}
}
