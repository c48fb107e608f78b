package services

import (
	"context"
	"sync"
	"testing"

	"live-shopping-platform/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItemMergesSameBatch(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	_, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(2))
	require.NoError(t, err)

	state, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(3))
	require.NoError(t, err)

	require.Len(t, state.Items, 1)
	assert.True(t, state.Items[0].Quantity.Equal(decimal.NewFromInt(5)))
	// Blue Dream 3.5g at 35.00: 5 * 35.00
	assert.True(t, state.TotalValue.Equal(decimal.RequireFromString("175.00")),
		"got total %s", state.TotalValue)
}

func TestAddItemConcurrentSameBatch(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)

	const adders = 10
	var wg sync.WaitGroup
	for i := 0; i < adders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.cart.AddItem(context.Background(), session.ID, 1, decimal.NewFromInt(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := env.cart.GetCart(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, state.Items, 1, "concurrent adds of one batch must merge into one line")
	assert.True(t, state.Items[0].Quantity.Equal(decimal.NewFromInt(adders)))
}

func TestAddItemValidation(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	t.Run("zero quantity", func(t *testing.T) {
		_, err := env.cart.AddItem(ctx, session.ID, 1, decimal.Zero)
		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("unknown batch", func(t *testing.T) {
		_, err := env.cart.AddItem(ctx, session.ID, 999, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, models.ErrBatchNotFound)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		// OG Kush 7g has 80 available
		_, err := env.cart.AddItem(ctx, session.ID, 2, decimal.NewFromInt(81))
		assert.ErrorIs(t, err, models.ErrInsufficientStock)
	})

	t.Run("merge past available stock", func(t *testing.T) {
		_, err := env.cart.AddItem(ctx, session.ID, 2, decimal.NewFromInt(50))
		require.NoError(t, err)
		_, err = env.cart.AddItem(ctx, session.ID, 2, decimal.NewFromInt(31))
		assert.ErrorIs(t, err, models.ErrInsufficientStock)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := env.cart.AddItem(ctx, 9999, 1, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
	})
}

func TestMutationsRejectedOnClosedSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	_, err := env.sessions.UpdateStatus(ctx, session.ID, models.SessionEnded)
	require.NoError(t, err)

	_, err = env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, models.ErrSessionClosed)

	_, err = env.cart.RemoveItem(ctx, session.ID, 1)
	assert.ErrorIs(t, err, models.ErrSessionClosed)

	_, err = env.cart.HighlightItem(ctx, session.ID, 1, true)
	assert.ErrorIs(t, err, models.ErrSessionClosed)
}

func TestRemoveItemIdempotent(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	state, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(2))
	require.NoError(t, err)
	itemID := state.Items[0].ID

	state, err = env.cart.RemoveItem(ctx, session.ID, itemID)
	require.NoError(t, err)
	assert.Empty(t, state.Items)

	published := env.publisher.count()

	// Removing the same line again succeeds without broadcasting anything
	state, err = env.cart.RemoveItem(ctx, session.ID, itemID)
	require.NoError(t, err)
	assert.Empty(t, state.Items)
	assert.Equal(t, published, env.publisher.count())
}

func TestUpdateQuantity(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	state, err := env.cart.AddItem(ctx, session.ID, 3, decimal.NewFromInt(4))
	require.NoError(t, err)
	itemID := state.Items[0].ID

	t.Run("replaces the quantity", func(t *testing.T) {
		state, err := env.cart.UpdateQuantity(ctx, session.ID, itemID, decimal.RequireFromString("2.5"))
		require.NoError(t, err)
		require.Len(t, state.Items, 1)
		assert.True(t, state.Items[0].Quantity.Equal(decimal.RequireFromString("2.5")))
	})

	t.Run("unknown line succeeds unchanged", func(t *testing.T) {
		state, err := env.cart.UpdateQuantity(ctx, session.ID, 9999, decimal.NewFromInt(1))
		require.NoError(t, err)
		assert.Len(t, state.Items, 1)
	})

	t.Run("cannot exceed available stock", func(t *testing.T) {
		// Sour Diesel Pre-Roll has 500 available
		_, err := env.cart.UpdateQuantity(ctx, session.ID, itemID, decimal.NewFromInt(501))
		assert.ErrorIs(t, err, models.ErrInsufficientStock)

		state, err := env.cart.GetCart(ctx, session.ID)
		require.NoError(t, err)
		assert.True(t, state.Items[0].Quantity.Equal(decimal.RequireFromString("2.5")),
			"rejected update must leave the line untouched")
	})

	t.Run("zero removes the line", func(t *testing.T) {
		state, err := env.cart.UpdateQuantity(ctx, session.ID, itemID, decimal.Zero)
		require.NoError(t, err)
		assert.Empty(t, state.Items)
	})
}

func TestSetOverridePrice(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	state, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(2))
	require.NoError(t, err)
	itemID := state.Items[0].ID

	t.Run("negative price rejected", func(t *testing.T) {
		_, err := env.cart.SetOverridePrice(ctx, session.ID, PriceOverrideRef{CartItemID: itemID},
			decimal.RequireFromString("-5"))
		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("override applies to the line", func(t *testing.T) {
		state, err := env.cart.SetOverridePrice(ctx, session.ID, PriceOverrideRef{CartItemID: itemID},
			decimal.RequireFromString("25.00"))
		require.NoError(t, err)
		require.Len(t, state.Items, 1)
		assert.True(t, state.Items[0].PriceOverridden)
		assert.True(t, state.Items[0].UnitPrice.Equal(decimal.RequireFromString("25.00")))
		assert.True(t, state.TotalValue.Equal(decimal.RequireFromString("50.00")))
	})

	t.Run("override survives a quantity update", func(t *testing.T) {
		state, err := env.cart.UpdateQuantity(ctx, session.ID, itemID, decimal.NewFromInt(3))
		require.NoError(t, err)
		assert.True(t, state.Items[0].PriceOverridden)
		assert.True(t, state.Items[0].UnitPrice.Equal(decimal.RequireFromString("25.00")))
	})

	t.Run("override applies to later adds of the product", func(t *testing.T) {
		_, err := env.cart.RemoveItem(ctx, session.ID, itemID)
		require.NoError(t, err)

		state, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(1))
		require.NoError(t, err)
		require.Len(t, state.Items, 1)
		assert.True(t, state.Items[0].PriceOverridden)
		assert.True(t, state.Items[0].UnitPrice.Equal(decimal.RequireFromString("25.00")))
	})

	t.Run("missing target rejected", func(t *testing.T) {
		_, err := env.cart.SetOverridePrice(ctx, session.ID, PriceOverrideRef{},
			decimal.RequireFromString("10.00"))
		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestHighlightItem(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	_, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = env.cart.AddItem(ctx, session.ID, 2, decimal.NewFromInt(1))
	require.NoError(t, err)

	state, err := env.cart.HighlightItem(ctx, session.ID, 1, true)
	require.NoError(t, err)
	highlighted := state.HighlightedItem()
	require.NotNil(t, highlighted)
	assert.Equal(t, int64(1), highlighted.BatchID)

	// Highlighting another line steals the highlight
	state, err = env.cart.HighlightItem(ctx, session.ID, 2, true)
	require.NoError(t, err)
	highlighted = state.HighlightedItem()
	require.NotNil(t, highlighted)
	assert.Equal(t, int64(2), highlighted.BatchID)
	for _, item := range state.Items {
		if item.BatchID != 2 {
			assert.False(t, item.IsHighlighted)
		}
	}

	// HIGHLIGHTED is only broadcast when something gets highlighted
	assert.Len(t, env.publisher.byType(models.EventHighlighted), 2)

	state, err = env.cart.HighlightItem(ctx, session.ID, 2, false)
	require.NoError(t, err)
	assert.Nil(t, state.HighlightedItem())
	assert.Len(t, env.publisher.byType(models.EventHighlighted), 2)
}

func TestCartTotalsInvariant(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	_, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(2))
	require.NoError(t, err)
	_, err = env.cart.AddItem(ctx, session.ID, 3, decimal.RequireFromString("4"))
	require.NoError(t, err)
	state, err := env.cart.SetOverridePrice(ctx, session.ID, PriceOverrideRef{ProductID: 103},
		decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	sum := decimal.Zero
	for i := range state.Items {
		sum = sum.Add(state.Items[i].Subtotal())
	}
	assert.True(t, state.TotalValue.Equal(sum))
	assert.Equal(t, len(state.Items), state.ItemCount)

	// Every CART_UPDATED frame carries the same invariant
	frames := env.publisher.byType(models.EventCartUpdated)
	require.NotEmpty(t, frames)
}

func TestItemStatusWorkflow(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	t.Run("plain adds start as purchases", func(t *testing.T) {
		state, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(2))
		require.NoError(t, err)
		require.Len(t, state.Items, 1)
		assert.Equal(t, models.ItemToPurchase, state.Items[0].Status)
	})

	t.Run("add with explicit status", func(t *testing.T) {
		state, err := env.cart.AddItemWithStatus(ctx, session.ID, 2, decimal.NewFromInt(1), models.ItemSampleRequest)
		require.NoError(t, err)
		require.Len(t, state.Items, 2)
		assert.Equal(t, models.ItemSampleRequest, state.Items[1].Status)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		_, err := env.cart.AddItemWithStatus(ctx, session.ID, 3, decimal.NewFromInt(1), "WISHLIST")
		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)

		_, err = env.cart.UpdateItemStatus(ctx, session.ID, 1, "WISHLIST")
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("status change broadcasts before the cart refresh", func(t *testing.T) {
		state, err := env.cart.GetCart(ctx, session.ID)
		require.NoError(t, err)
		itemID := state.Items[1].ID

		before := env.publisher.count()
		state, err = env.cart.UpdateItemStatus(ctx, session.ID, itemID, models.ItemInterested)
		require.NoError(t, err)
		assert.Equal(t, models.ItemInterested, state.Items[1].Status)

		events := env.publisher.all()[before:]
		require.Len(t, events, 2)
		assert.Equal(t, models.EventItemStatusChanged, events[0].Type)
		assert.Equal(t, models.EventCartUpdated, events[1].Type)
	})

	t.Run("status change on a missing line succeeds unchanged", func(t *testing.T) {
		before := env.publisher.count()
		_, err := env.cart.UpdateItemStatus(ctx, session.ID, 9999, models.ItemToPurchase)
		require.NoError(t, err)
		assert.Equal(t, before, env.publisher.count())
	})

	t.Run("merging with a status moves the line", func(t *testing.T) {
		state, err := env.cart.AddItemWithStatus(ctx, session.ID, 1, decimal.NewFromInt(1), models.ItemInterested)
		require.NoError(t, err)
		require.Len(t, state.Items, 2)
		assert.True(t, state.Items[0].Quantity.Equal(decimal.NewFromInt(3)))
		assert.Equal(t, models.ItemInterested, state.Items[0].Status)
	})
}

func TestToggleSample(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	state, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(1))
	require.NoError(t, err)
	itemID := state.Items[0].ID

	state, err = env.cart.ToggleSample(ctx, session.ID, itemID, true)
	require.NoError(t, err)
	assert.True(t, state.Items[0].IsSample)
	// The sample flag does not disturb the workflow status
	assert.Equal(t, models.ItemToPurchase, state.Items[0].Status)

	state, err = env.cart.ToggleSample(ctx, session.ID, itemID, false)
	require.NoError(t, err)
	assert.False(t, state.Items[0].IsSample)

	_, err = env.cart.ToggleSample(ctx, session.ID, 9999, true)
	require.NoError(t, err)
}

func TestItemsByStatus(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t)
	ctx := context.Background()

	_, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(2))
	require.NoError(t, err)
	_, err = env.cart.AddItemWithStatus(ctx, session.ID, 2, decimal.NewFromInt(1), models.ItemSampleRequest)
	require.NoError(t, err)
	_, err = env.cart.AddItemWithStatus(ctx, session.ID, 3, decimal.NewFromInt(4), models.ItemInterested)
	require.NoError(t, err)

	groups, err := env.cart.ItemsByStatus(ctx, session.ID)
	require.NoError(t, err)

	assert.Len(t, groups.SampleRequests, 1)
	assert.Len(t, groups.Interested, 1)
	require.Len(t, groups.ToPurchase, 1)
	// Only the committed line counts toward the purchase value: 2 * 35.00
	assert.True(t, groups.ToPurchaseValue.Equal(decimal.RequireFromString("70.00")),
		"got %s", groups.ToPurchaseValue)
}
