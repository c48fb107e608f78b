package repositories

import (
	"context"
	"time"

	"live-shopping-platform/internal/models"

	"github.com/shopspring/decimal"
)

// SessionFilters represents filters for session listing
type SessionFilters struct {
	Status   models.SessionStatus // Filter by status, empty for all
	ClientID int64                // Filter by client, zero for all
	Limit    int
	Offset   int
}

// SessionStore is the authoritative record of live sessions and their carts.
// All access goes through the cart mutation engine or the session state
// machine; transport and broadcast code never touch it directly.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	GetSessionByRoomCode(ctx context.Context, roomCode string) (*models.Session, error)
	ListSessions(ctx context.Context, filters SessionFilters) ([]*models.Session, error)

	// TransitionSession validates the status change against the state machine
	// and commits it atomically, returning the updated session. A session
	// already in a terminal state reports models.ErrSessionClosed, so a
	// transition to ENDED commits at most once however many callers race.
	TransitionSession(ctx context.Context, id int64, next models.SessionStatus) (*models.Session, error)

	SetSessionExpiry(ctx context.Context, id int64, expiresAt *time.Time) error

	ListCartItems(ctx context.Context, sessionID int64) ([]models.CartItem, error)
	GetCartItem(ctx context.Context, sessionID, itemID int64) (*models.CartItem, error)
	FindCartItemByBatch(ctx context.Context, sessionID, batchID int64) (*models.CartItem, error)
	InsertCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItem(ctx context.Context, item *models.CartItem) error
	DeleteCartItem(ctx context.Context, sessionID, itemID int64) error
	ClearHighlights(ctx context.Context, sessionID int64) error

	SetPriceOverride(ctx context.Context, sessionID, productID int64, price decimal.Decimal) error
	GetPriceOverride(ctx context.Context, sessionID, productID int64) (decimal.Decimal, bool, error)
}

// OrderRepository persists sales orders converted from ended sessions
type OrderRepository interface {
	// CreateFromSession atomically creates the order, one line per cart item,
	// and stamps the session as converted. Either everything commits or
	// nothing is persisted.
	CreateFromSession(ctx context.Context, session *models.Session, items []models.CartItem) (*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}
