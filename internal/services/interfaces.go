package services

import (
	"context"
	"time"

	"live-shopping-platform/internal/models"
	"live-shopping-platform/internal/repositories"

	"github.com/shopspring/decimal"
)

// BatchInfo is what the catalog resolves a batch id into at add time
type BatchInfo struct {
	BatchID      int64
	ProductID    int64
	ProductName  string
	BasePrice    decimal.Decimal
	AvailableQty decimal.Decimal
}

// CatalogService resolves product batches. The catalog is an external
// collaborator; this package consumes it but does not implement it beyond
// the mock used for tests and database-less runs.
type CatalogService interface {
	ResolveBatch(ctx context.Context, batchID int64) (*BatchInfo, error)
}

// EventPublisher hands committed state changes to the broadcast hub.
// Publish is called while the per-session lock is held, so the order of
// calls is the commit order.
type EventPublisher interface {
	Publish(sessionID int64, event models.Event)
}

// PriceOverrideRef identifies the target of a price override by cart item
// or by product. Exactly one field should be set.
type PriceOverrideRef struct {
	CartItemID int64
	ProductID  int64
}

// CartServiceInterface defines the cart mutation engine operations
type CartServiceInterface interface {
	AddItem(ctx context.Context, sessionID, batchID int64, quantity decimal.Decimal) (*models.CartState, error)
	AddItemWithStatus(ctx context.Context, sessionID, batchID int64, quantity decimal.Decimal, status models.ItemStatus) (*models.CartState, error)
	RemoveItem(ctx context.Context, sessionID, cartItemID int64) (*models.CartState, error)
	UpdateQuantity(ctx context.Context, sessionID, cartItemID int64, quantity decimal.Decimal) (*models.CartState, error)
	UpdateItemStatus(ctx context.Context, sessionID, cartItemID int64, status models.ItemStatus) (*models.CartState, error)
	ToggleSample(ctx context.Context, sessionID, cartItemID int64, isSample bool) (*models.CartState, error)
	SetOverridePrice(ctx context.Context, sessionID int64, ref PriceOverrideRef, price decimal.Decimal) (*models.CartState, error)
	HighlightItem(ctx context.Context, sessionID, batchID int64, isHighlighted bool) (*models.CartState, error)
	GetCart(ctx context.Context, sessionID int64) (*models.CartState, error)
	ItemsByStatus(ctx context.Context, sessionID int64) (*models.CartStatusGroups, error)
}

// SessionServiceInterface defines session lifecycle operations
type SessionServiceInterface interface {
	CreateSession(ctx context.Context, req *models.SessionCreateRequest) (*models.Session, error)
	GetSession(ctx context.Context, sessionID int64) (*models.Session, error)
	ListSessions(ctx context.Context, filters repositories.SessionFilters) ([]*models.Session, error)
	UpdateStatus(ctx context.Context, sessionID int64, next models.SessionStatus) (*models.Session, error)
	Snapshot(ctx context.Context, sessionID int64) (*models.SyncPayload, error)
}

// TimeoutManagerInterface is the extendTimeout surface exposed to handlers
type TimeoutManagerInterface interface {
	Extend(ctx context.Context, sessionID int64, newExpiresAt time.Time) (*models.Session, error)
}

// EndSessionResult reports what endSession did
type EndSessionResult struct {
	Session *models.Session `json:"session"`
	Order   *models.Order   `json:"order,omitempty"`
}

// OrderServiceInterface defines the one-shot session conversion
type OrderServiceInterface interface {
	EndSession(ctx context.Context, sessionID int64, convertToOrder bool) (*EndSessionResult, error)
}
