package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"live-shopping-platform/internal/metrics"
	"live-shopping-platform/internal/models"
	"live-shopping-platform/internal/repositories"
)

// TimeoutManager owns the expiry clocks of live sessions. It periodically
// sweeps ACTIVE and PAUSED sessions, publishes a warning once per threshold
// crossing, and force-ends sessions whose clock has run out.
type TimeoutManager struct {
	store            repositories.SessionStore
	sessions         *SessionService
	publisher        EventPublisher
	locks            *SessionLocks
	checkInterval    time.Duration
	warningThreshold time.Duration

	mu     sync.Mutex
	warned map[int64]time.Time // expiry value each warning was issued for
}

// NewTimeoutManager creates a new timeout manager
func NewTimeoutManager(store repositories.SessionStore, sessions *SessionService, publisher EventPublisher, locks *SessionLocks, checkInterval, warningThreshold time.Duration) *TimeoutManager {
	return &TimeoutManager{
		store:            store,
		sessions:         sessions,
		publisher:        publisher,
		locks:            locks,
		checkInterval:    checkInterval,
		warningThreshold: warningThreshold,
		warned:           make(map[int64]time.Time),
	}
}

// Run sweeps expiry clocks until the context is cancelled
func (m *TimeoutManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(ctx, time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// sweep checks every live session's clock once
func (m *TimeoutManager) sweep(ctx context.Context, now time.Time) {
	for _, status := range []models.SessionStatus{models.SessionActive, models.SessionPaused} {
		sessions, err := m.store.ListSessions(ctx, repositories.SessionFilters{Status: status})
		if err != nil {
			log.Printf("Timeout sweep failed to list %s sessions: %v", status, err)
			continue
		}
		for _, session := range sessions {
			m.check(ctx, session, now)
		}
	}
}

func (m *TimeoutManager) check(ctx context.Context, session *models.Session, now time.Time) {
	if session.ExpiresAt == nil {
		return
	}

	if !now.Before(*session.ExpiresAt) {
		m.expire(ctx, session)
		return
	}

	remaining := session.ExpiresAt.Sub(now)
	if remaining > m.warningThreshold {
		return
	}

	// One warning per threshold crossing: a warning is keyed to the expiry
	// value it was issued for, so extending the clock re-arms it.
	m.mu.Lock()
	already := m.warned[session.ID].Equal(*session.ExpiresAt)
	if !already {
		m.warned[session.ID] = *session.ExpiresAt
	}
	m.mu.Unlock()
	if already {
		return
	}

	event, err := models.NewEvent(models.EventTimeoutWarning, session.ID, &models.TimeoutWarningPayload{
		RemainingSeconds: int64(remaining.Seconds()),
	})
	if err != nil {
		log.Printf("Failed to build TIMEOUT_WARNING event for session %d: %v", session.ID, err)
		return
	}
	m.publisher.Publish(session.ID, event)
	metrics.TimeoutWarnings.Inc()
}

func (m *TimeoutManager) expire(ctx context.Context, session *models.Session) {
	ended, err := m.sessions.EndForTimeout(ctx, session.ID)
	if err != nil {
		// Someone else already closed it; the timeout fires at most once.
		if errors.Is(err, models.ErrSessionClosed) {
			m.forget(session.ID)
			return
		}
		log.Printf("Failed to expire session %d: %v", session.ID, err)
		return
	}

	event, err := models.NewEvent(models.EventSessionTimeout, session.ID, &models.SessionTimeoutPayload{
		Status: ended.Status,
	})
	if err != nil {
		log.Printf("Failed to build SESSION_TIMEOUT event for session %d: %v", session.ID, err)
	} else {
		m.publisher.Publish(session.ID, event)
	}

	metrics.SessionsExpired.Inc()
	m.forget(session.ID)
	log.Printf("Session %d expired and was force-ended", session.ID)
}

func (m *TimeoutManager) forget(sessionID int64) {
	m.mu.Lock()
	delete(m.warned, sessionID)
	m.mu.Unlock()
}

// Extend resets a live session's expiry clock and broadcasts the extension.
// Extending an ended or cancelled session fails with ErrSessionClosed.
func (m *TimeoutManager) Extend(ctx context.Context, sessionID int64, newExpiresAt time.Time) (*models.Session, error) {
	now := time.Now()
	if !newExpiresAt.After(now) {
		return nil, models.NewValidationError("expires_at", "new expiry must be in the future")
	}

	unlock := m.locks.Lock(sessionID)
	defer unlock()

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.IsLive() {
		return nil, models.ErrSessionClosed
	}

	if err := m.store.SetSessionExpiry(ctx, sessionID, &newExpiresAt); err != nil {
		return nil, err
	}
	session.ExpiresAt = &newExpiresAt
	m.forget(sessionID)

	remaining, _ := session.RemainingSeconds(now)
	event, err := models.NewEvent(models.EventTimeoutExtended, sessionID, &models.TimeoutExtendedPayload{
		NewExpiresAt:     newExpiresAt,
		RemainingSeconds: remaining,
	})
	if err != nil {
		log.Printf("Failed to build TIMEOUT_EXTENDED event for session %d: %v", sessionID, err)
		return session, nil
	}
	m.publisher.Publish(sessionID, event)
	return session, nil
}
