package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"live-shopping-platform/internal/metrics"
	"live-shopping-platform/internal/models"
	"live-shopping-platform/internal/repositories"

	"github.com/shopspring/decimal"
)

// CartService is the cart mutation engine. Every public operation acquires
// the session's mutex before touching the store, so mutations against one
// session are applied one at a time in arrival order while different
// sessions proceed in parallel.
type CartService struct {
	store     repositories.SessionStore
	catalog   CatalogService
	publisher EventPublisher
	locks     *SessionLocks
}

// NewCartService creates a new cart mutation engine
func NewCartService(store repositories.SessionStore, catalog CatalogService, publisher EventPublisher, locks *SessionLocks) *CartService {
	return &CartService{
		store:     store,
		catalog:   catalog,
		publisher: publisher,
		locks:     locks,
	}
}

// mutableSession loads the session and rejects mutations on closed ones
func (s *CartService) mutableSession(ctx context.Context, sessionID int64) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, models.ErrSessionClosed
	}
	return session, nil
}

// publishCart recomputes the cart state and broadcasts CART_UPDATED.
// Must be called with the session lock held.
func (s *CartService) publishCart(ctx context.Context, sessionID int64) (*models.CartState, error) {
	items, err := s.store.ListCartItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state := models.ComputeCartState(sessionID, items)

	event, err := models.NewEvent(models.EventCartUpdated, sessionID, state)
	if err != nil {
		// The mutation is committed; a marshal failure only costs the broadcast.
		log.Printf("Failed to build CART_UPDATED event for session %d: %v", sessionID, err)
		return state, nil
	}
	s.publisher.Publish(sessionID, event)
	return state, nil
}

func recordMutation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.CartMutations.WithLabelValues(operation, outcome).Inc()
}

// AddItem adds a batch to the session cart. Adding a batch that already has
// a line merges quantities instead of creating a second line. The unit price
// is resolved from the catalog at add time unless a session override exists.
// New lines start in the TO_PURCHASE status.
func (s *CartService) AddItem(ctx context.Context, sessionID, batchID int64, quantity decimal.Decimal) (state *models.CartState, err error) {
	defer func() { recordMutation("add_item", err) }()
	return s.addItem(ctx, sessionID, batchID, quantity, "")
}

// AddItemWithStatus adds a batch directly into a workflow status, so a line
// can enter the cart as a sample request or a maybe rather than a purchase.
// Merging into an existing line moves that line to the requested status.
func (s *CartService) AddItemWithStatus(ctx context.Context, sessionID, batchID int64, quantity decimal.Decimal, status models.ItemStatus) (state *models.CartState, err error) {
	defer func() { recordMutation("add_item_with_status", err) }()

	if !status.IsValid() {
		return nil, models.NewValidationError("item_status", "unknown item status")
	}
	return s.addItem(ctx, sessionID, batchID, quantity, status)
}

// addItem is the shared add path. An empty status means "default": new lines
// get TO_PURCHASE and merged lines keep whatever status they had.
func (s *CartService) addItem(ctx context.Context, sessionID, batchID int64, quantity decimal.Decimal, status models.ItemStatus) (*models.CartState, error) {
	if !quantity.IsPositive() {
		return nil, models.NewValidationError("quantity", "quantity must be greater than zero")
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err := s.mutableSession(ctx, sessionID); err != nil {
		return nil, err
	}

	info, err := s.catalog.ResolveBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindCartItemByBatch(ctx, sessionID, batchID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		newQuantity := existing.Quantity.Add(quantity)
		if newQuantity.GreaterThan(info.AvailableQty) {
			return nil, models.ErrInsufficientStock
		}
		existing.Quantity = newQuantity
		if status != "" {
			existing.Status = status
		}
		if err = s.store.UpdateCartItem(ctx, existing); err != nil {
			return nil, err
		}
		return s.publishCart(ctx, sessionID)
	}

	if quantity.GreaterThan(info.AvailableQty) {
		return nil, models.ErrInsufficientStock
	}

	unitPrice := info.BasePrice
	overridden := false
	if override, ok, oerr := s.store.GetPriceOverride(ctx, sessionID, info.ProductID); oerr != nil {
		return nil, oerr
	} else if ok {
		unitPrice = override
		overridden = true
	}

	if status == "" {
		status = models.ItemToPurchase
	}
	item := &models.CartItem{
		SessionID:       sessionID,
		BatchID:         batchID,
		ProductID:       info.ProductID,
		ProductName:     info.ProductName,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		PriceOverridden: overridden,
		Status:          status,
		AddedAt:         time.Now(),
	}
	if err = s.store.InsertCartItem(ctx, item); err != nil {
		return nil, err
	}
	return s.publishCart(ctx, sessionID)
}

// UpdateItemStatus moves a cart line along the three-status workflow and
// broadcasts ITEM_STATUS_CHANGED followed by the refreshed cart. Unknown
// lines succeed unchanged, matching RemoveItem.
func (s *CartService) UpdateItemStatus(ctx context.Context, sessionID, cartItemID int64, status models.ItemStatus) (state *models.CartState, err error) {
	defer func() { recordMutation("update_item_status", err) }()

	if !status.IsValid() {
		return nil, models.NewValidationError("item_status", "unknown item status")
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err = s.mutableSession(ctx, sessionID); err != nil {
		return nil, err
	}

	item, err := s.store.GetCartItem(ctx, sessionID, cartItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return s.currentState(ctx, sessionID)
	}

	item.Status = status
	if err = s.store.UpdateCartItem(ctx, item); err != nil {
		return nil, err
	}

	event, eerr := models.NewEvent(models.EventItemStatusChanged, sessionID, &models.ItemStatusPayload{
		CartItemID: cartItemID,
		NewStatus:  status,
	})
	if eerr != nil {
		return nil, fmt.Errorf("failed to build item status event: %w", eerr)
	}
	s.publisher.Publish(sessionID, event)

	return s.publishCart(ctx, sessionID)
}

// ToggleSample flags or unflags a cart line as a physical sample pull.
// The flag is independent of the workflow status.
func (s *CartService) ToggleSample(ctx context.Context, sessionID, cartItemID int64, isSample bool) (state *models.CartState, err error) {
	defer func() { recordMutation("toggle_sample", err) }()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err = s.mutableSession(ctx, sessionID); err != nil {
		return nil, err
	}

	item, err := s.store.GetCartItem(ctx, sessionID, cartItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return s.currentState(ctx, sessionID)
	}

	item.IsSample = isSample
	if err = s.store.UpdateCartItem(ctx, item); err != nil {
		return nil, err
	}
	return s.publishCart(ctx, sessionID)
}

// ItemsByStatus returns the cart split into its workflow groups
func (s *CartService) ItemsByStatus(ctx context.Context, sessionID int64) (*models.CartStatusGroups, error) {
	state, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return state.GroupByStatus(), nil
}

// RemoveItem removes a cart line. Removing a line that is already gone is a
// no-op success, since retries and reconnect races make that common.
func (s *CartService) RemoveItem(ctx context.Context, sessionID, cartItemID int64) (state *models.CartState, err error) {
	defer func() { recordMutation("remove_item", err) }()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err = s.mutableSession(ctx, sessionID); err != nil {
		return nil, err
	}

	item, err := s.store.GetCartItem(ctx, sessionID, cartItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		// Already absent: succeed without publishing anything.
		return s.currentState(ctx, sessionID)
	}

	if err = s.store.DeleteCartItem(ctx, sessionID, cartItemID); err != nil {
		return nil, err
	}
	return s.publishCart(ctx, sessionID)
}

// UpdateQuantity replaces a line's quantity; zero or negative removes the
// line. Unknown lines succeed unchanged, matching RemoveItem.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, cartItemID int64, quantity decimal.Decimal) (state *models.CartState, err error) {
	defer func() { recordMutation("update_quantity", err) }()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err = s.mutableSession(ctx, sessionID); err != nil {
		return nil, err
	}

	item, err := s.store.GetCartItem(ctx, sessionID, cartItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return s.currentState(ctx, sessionID)
	}

	if !quantity.IsPositive() {
		if err = s.store.DeleteCartItem(ctx, sessionID, cartItemID); err != nil {
			return nil, err
		}
		return s.publishCart(ctx, sessionID)
	}

	// The replacement quantity honors the same stock ceiling as AddItem.
	info, err := s.catalog.ResolveBatch(ctx, item.BatchID)
	if err != nil {
		return nil, err
	}
	if quantity.GreaterThan(info.AvailableQty) {
		return nil, models.ErrInsufficientStock
	}

	item.Quantity = quantity
	if err = s.store.UpdateCartItem(ctx, item); err != nil {
		return nil, err
	}
	return s.publishCart(ctx, sessionID)
}

// SetOverridePrice records a staff price override and applies it to the
// matching cart lines. Overridden lines keep their price when the catalog
// refreshes. The target may be named by cart item or by product.
func (s *CartService) SetOverridePrice(ctx context.Context, sessionID int64, ref PriceOverrideRef, price decimal.Decimal) (state *models.CartState, err error) {
	defer func() { recordMutation("set_override_price", err) }()

	if price.IsNegative() {
		return nil, models.NewValidationError("price", "price must not be negative")
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err = s.mutableSession(ctx, sessionID); err != nil {
		return nil, err
	}

	productID := ref.ProductID
	if ref.CartItemID > 0 {
		item, gerr := s.store.GetCartItem(ctx, sessionID, ref.CartItemID)
		if gerr != nil {
			return nil, gerr
		}
		if item == nil {
			// Line vanished under a retry; nothing to override.
			return s.currentState(ctx, sessionID)
		}
		productID = item.ProductID
	}
	if productID <= 0 {
		return nil, models.NewValidationError("product_id", "a cart item id or product id is required")
	}

	if err = s.store.SetPriceOverride(ctx, sessionID, productID, price); err != nil {
		return nil, err
	}

	items, err := s.store.ListCartItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}
		items[i].UnitPrice = price
		items[i].PriceOverridden = true
		if err = s.store.UpdateCartItem(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return s.publishCart(ctx, sessionID)
}

// HighlightItem sets the highlight flag on the matching line and clears it
// on every other line; only one item may be highlighted at a time.
func (s *CartService) HighlightItem(ctx context.Context, sessionID, batchID int64, isHighlighted bool) (state *models.CartState, err error) {
	defer func() { recordMutation("highlight_item", err) }()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err = s.mutableSession(ctx, sessionID); err != nil {
		return nil, err
	}

	if err = s.store.ClearHighlights(ctx, sessionID); err != nil {
		return nil, err
	}

	if isHighlighted {
		item, ferr := s.store.FindCartItemByBatch(ctx, sessionID, batchID)
		if ferr != nil {
			return nil, ferr
		}
		if item != nil {
			item.IsHighlighted = true
			if err = s.store.UpdateCartItem(ctx, item); err != nil {
				return nil, err
			}
		}

		event, eerr := models.NewEvent(models.EventHighlighted, sessionID, &models.HighlightPayload{
			BatchID:       batchID,
			IsHighlighted: true,
		})
		if eerr != nil {
			return nil, fmt.Errorf("failed to build highlight event: %w", eerr)
		}
		s.publisher.Publish(sessionID, event)
	}

	return s.publishCart(ctx, sessionID)
}

// GetCart returns the current derived cart state
func (s *CartService) GetCart(ctx context.Context, sessionID int64) (*models.CartState, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.currentState(ctx, sessionID)
}

func (s *CartService) currentState(ctx context.Context, sessionID int64) (*models.CartState, error) {
	items, err := s.store.ListCartItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return models.ComputeCartState(sessionID, items), nil
}
