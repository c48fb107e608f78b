package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"live-shopping-platform/internal/models"
	"live-shopping-platform/internal/repositories"

	"github.com/stretchr/testify/require"
)

// capturePublisher records published events for assertions
type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(sessionID int64, event models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byType(eventType models.EventType) []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []models.Event
	for _, event := range p.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (p *capturePublisher) all() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event{}, p.events...)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// testEnv wires the services against the in-memory store
type testEnv struct {
	store     *repositories.MemorySessionStore
	orderRepo *repositories.MemoryOrderRepository
	publisher *capturePublisher
	catalog   *MockCatalogService
	locks     *SessionLocks
	sessions  *SessionService
	cart      *CartService
	orders    *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repositories.NewMemorySessionStore()
	orderRepo := repositories.NewMemoryOrderRepository(store)
	publisher := &capturePublisher{}
	catalog := NewMockCatalogService()
	locks := NewSessionLocks()
	sessions := NewSessionService(store, publisher, locks, 2*time.Hour)

	return &testEnv{
		store:     store,
		orderRepo: orderRepo,
		publisher: publisher,
		catalog:   catalog,
		locks:     locks,
		sessions:  sessions,
		cart:      NewCartService(store, catalog, publisher, locks),
		orders:    NewOrderService(store, orderRepo, sessions, locks),
	}
}

// activeSession creates a session that starts ACTIVE immediately
func (env *testEnv) activeSession(t *testing.T) *models.Session {
	t.Helper()

	session, err := env.sessions.CreateSession(context.Background(), &models.SessionCreateRequest{
		ClientID:   1,
		HostUserID: 2,
		Title:      "Friday drop",
	})
	require.NoError(t, err)
	require.Equal(t, models.SessionActive, session.Status)
	return session
}
