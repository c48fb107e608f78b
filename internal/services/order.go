package services

import (
	"context"
	"errors"
	"log"

	"live-shopping-platform/internal/models"
	"live-shopping-platform/internal/repositories"
)

// OrderService performs the one-shot conversion of an ended session's cart
// into a persisted sales order.
type OrderService struct {
	store    repositories.SessionStore
	orders   repositories.OrderRepository
	sessions *SessionService
	locks    *SessionLocks
}

// NewOrderService creates a new order conversion service
func NewOrderService(store repositories.SessionStore, orders repositories.OrderRepository, sessions *SessionService, locks *SessionLocks) *OrderService {
	return &OrderService{
		store:    store,
		orders:   orders,
		sessions: sessions,
		locks:    locks,
	}
}

// EndSession transitions the session to ENDED and, when requested, converts
// the final cart into an order. Ending a session the timeout already ended
// is idempotent. Conversion is transactional: on failure nothing is
// persisted, the session stays ENDED but unconverted, and the caller gets a
// retryable ConversionError.
func (s *OrderService) EndSession(ctx context.Context, sessionID int64, convertToOrder bool) (*EndSessionResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch {
	case session.Status == models.SessionCancelled:
		return nil, models.ErrSessionClosed
	case session.Status == models.SessionEnded:
		// Already ended (typically by timeout); conversion may still proceed.
	default:
		session, err = s.store.TransitionSession(ctx, sessionID, models.SessionEnded)
		if err != nil {
			return nil, err
		}
		s.publishEnded(session)
	}

	result := &EndSessionResult{Session: session}
	if !convertToOrder {
		return result, nil
	}

	if session.ConvertedOrderID != nil {
		order, err := s.orders.GetOrderByID(ctx, *session.ConvertedOrderID)
		if err != nil && !errors.Is(err, models.ErrOrderNotFound) {
			return nil, err
		}
		result.Order = order
		return result, nil
	}

	items, err := s.store.ListCartItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		// Converting an empty cart is a no-op success with no order created.
		return result, nil
	}

	order, err := s.orders.CreateFromSession(ctx, session, items)
	if err != nil {
		return nil, &models.ConversionError{SessionID: sessionID, Err: err}
	}

	orderID := order.ID
	session.ConvertedOrderID = &orderID
	result.Order = order
	log.Printf("Session %d converted to order %s (%d lines)", sessionID, order.OrderNumber, len(items))
	return result, nil
}

func (s *OrderService) publishEnded(session *models.Session) {
	event, err := models.NewEvent(models.EventSessionStatus, session.ID, &models.StatusPayload{Status: session.Status})
	if err != nil {
		log.Printf("Failed to build SESSION_STATUS event for session %d: %v", session.ID, err)
		return
	}
	s.sessions.publisher.Publish(session.ID, event)
}
