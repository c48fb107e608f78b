package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"live-shopping-platform/internal/models"

	"github.com/shopspring/decimal"
)

// MemorySessionStore is a thread-safe in-memory SessionStore. It backs the
// server when no database is configured and every service test.
type MemorySessionStore struct {
	mu        sync.RWMutex
	sessions  map[int64]*models.Session
	items     map[int64][]*models.CartItem // keyed by session id, insertion order
	overrides map[int64]map[int64]decimal.Decimal
	nextID    int64
	nextItem  int64
}

// NewMemorySessionStore creates an empty in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:  make(map[int64]*models.Session),
		items:     make(map[int64][]*models.CartItem),
		overrides: make(map[int64]map[int64]decimal.Decimal),
	}
}

func copySession(s *models.Session) *models.Session {
	out := *s
	return &out
}

func (m *MemorySessionStore) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	session.ID = m.nextID
	m.sessions[session.ID] = copySession(session)
	return nil
}

func (m *MemorySessionStore) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (m *MemorySessionStore) GetSessionByRoomCode(ctx context.Context, roomCode string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.sessions {
		if session.RoomCode == roomCode {
			return copySession(session), nil
		}
	}
	return nil, models.ErrSessionNotFound
}

func (m *MemorySessionStore) ListSessions(ctx context.Context, filters SessionFilters) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []*models.Session
	for _, session := range m.sessions {
		if filters.Status != "" && session.Status != filters.Status {
			continue
		}
		if filters.ClientID > 0 && session.ClientID != filters.ClientID {
			continue
		}
		sessions = append(sessions, copySession(session))
	}
	return sessions, nil
}

func (m *MemorySessionStore) TransitionSession(ctx context.Context, id int64, next models.SessionStatus) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if err := session.ApplyTransition(next, time.Now()); err != nil {
		return nil, err
	}
	return copySession(session), nil
}

func (m *MemorySessionStore) SetSessionExpiry(ctx context.Context, id int64, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	session.ExpiresAt = expiresAt
	return nil
}

func (m *MemorySessionStore) ListCartItems(ctx context.Context, sessionID int64) ([]models.CartItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := []models.CartItem{}
	for _, item := range m.items[sessionID] {
		items = append(items, *item)
	}
	return items, nil
}

func (m *MemorySessionStore) GetCartItem(ctx context.Context, sessionID, itemID int64) (*models.CartItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, item := range m.items[sessionID] {
		if item.ID == itemID {
			out := *item
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemorySessionStore) FindCartItemByBatch(ctx context.Context, sessionID, batchID int64) (*models.CartItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, item := range m.items[sessionID] {
		if item.BatchID == batchID {
			out := *item
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemorySessionStore) InsertCartItem(ctx context.Context, item *models.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextItem++
	item.ID = m.nextItem
	stored := *item
	m.items[item.SessionID] = append(m.items[item.SessionID], &stored)
	return nil
}

func (m *MemorySessionStore) UpdateCartItem(ctx context.Context, item *models.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.items[item.SessionID] {
		if existing.ID == item.ID {
			stored := *item
			m.items[item.SessionID][i] = &stored
			return nil
		}
	}
	return errors.New("cart item not found")
}

func (m *MemorySessionStore) DeleteCartItem(ctx context.Context, sessionID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items[sessionID]
	for i, item := range items {
		if item.ID == itemID {
			m.items[sessionID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemorySessionStore) ClearHighlights(ctx context.Context, sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.items[sessionID] {
		item.IsHighlighted = false
	}
	return nil
}

func (m *MemorySessionStore) SetPriceOverride(ctx context.Context, sessionID, productID int64, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overrides[sessionID] == nil {
		m.overrides[sessionID] = make(map[int64]decimal.Decimal)
	}
	m.overrides[sessionID][productID] = price
	return nil
}

func (m *MemorySessionStore) GetPriceOverride(ctx context.Context, sessionID, productID int64) (decimal.Decimal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	price, ok := m.overrides[sessionID][productID]
	return price, ok, nil
}

// MemoryOrderRepository is an in-memory OrderRepository. FailNext makes the
// next conversion fail after partial work, which tests use to verify that
// nothing is persisted on failure.
type MemoryOrderRepository struct {
	mu       sync.Mutex
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	sessions *MemorySessionStore
	nextID   int64
	FailNext bool
}

// NewMemoryOrderRepository creates an in-memory order repository. The session
// store is needed to stamp converted_order_id atomically with the order.
func NewMemoryOrderRepository(sessions *MemorySessionStore) *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
		sessions: sessions,
	}
}

func (r *MemoryOrderRepository) CreateFromSession(ctx context.Context, session *models.Session, items []models.CartItem) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailNext {
		r.FailNext = false
		return nil, errors.New("order persistence unavailable")
	}

	r.nextID++
	order := &models.Order{
		ID:          r.nextID,
		OrderNumber: models.GenerateOrderNumber(),
		SessionID:   session.ID,
		ClientID:    session.ClientID,
		TotalAmount: models.ComputeCartState(session.ID, items).TotalValue,
		Status:      models.OrderPending,
		CreatedAt:   time.Now(),
	}

	orderItems := make([]models.OrderItem, 0, len(items))
	for i, item := range items {
		orderItems = append(orderItems, models.OrderItem{
			ID:          int64(i + 1),
			OrderID:     order.ID,
			BatchID:     item.BatchID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	r.orders[order.ID] = order
	r.items[order.ID] = orderItems

	r.sessions.mu.Lock()
	if stored, ok := r.sessions.sessions[session.ID]; ok {
		orderID := order.ID
		stored.ConvertedOrderID = &orderID
	}
	r.sessions.mu.Unlock()

	return order, nil
}

func (r *MemoryOrderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	out := *order
	return &out, nil
}

func (r *MemoryOrderRepository) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.OrderItem{}, r.items[orderID]...), nil
}
