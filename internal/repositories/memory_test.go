package repositories

import (
	"context"
	"testing"
	"time"

	"live-shopping-platform/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSession(t *testing.T, store *MemorySessionStore, status models.SessionStatus) *models.Session {
	t.Helper()

	session := &models.Session{
		RoomCode:   models.NewRoomCode(),
		ClientID:   1,
		HostUserID: 2,
		Status:     status,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.CreateSession(context.Background(), session))
	return session
}

func TestMemoryStoreTransitionIsCompareAndSwap(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	session := seedSession(t, store, models.SessionActive)

	ended, err := store.TransitionSession(ctx, session.ID, models.SessionEnded)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, ended.Status)

	// The second transition out of a terminal state loses the race
	_, err = store.TransitionSession(ctx, session.ID, models.SessionEnded)
	assert.ErrorIs(t, err, models.ErrSessionClosed)
}

func TestMemoryStoreCopiesOnRead(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	session := seedSession(t, store, models.SessionActive)

	loaded, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	loaded.Status = models.SessionCancelled

	fresh, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, fresh.Status, "mutating a read copy must not leak into the store")
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	seedSession(t, store, models.SessionActive)
	seedSession(t, store, models.SessionEnded)
	other := &models.Session{
		RoomCode:   models.NewRoomCode(),
		ClientID:   7,
		HostUserID: 2,
		Status:     models.SessionActive,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.CreateSession(ctx, other))

	active, err := store.ListSessions(ctx, SessionFilters{Status: models.SessionActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	ended, err := store.ListSessions(ctx, SessionFilters{Status: models.SessionEnded})
	require.NoError(t, err)
	assert.Len(t, ended, 1)

	byClient, err := store.ListSessions(ctx, SessionFilters{ClientID: 7})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, other.ID, byClient[0].ID)
}

func TestMemoryStoreCartItems(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	session := seedSession(t, store, models.SessionActive)

	item := &models.CartItem{
		SessionID: session.ID,
		BatchID:   10,
		ProductID: 100,
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: decimal.RequireFromString("9.99"),
	}
	require.NoError(t, store.InsertCartItem(ctx, item))
	require.NotZero(t, item.ID)

	found, err := store.FindCartItemByBatch(ctx, session.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, item.ID, found.ID)

	missing, err := store.GetCartItem(ctx, session.ID, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing, "a missing line is nil, not an error")

	require.NoError(t, store.DeleteCartItem(ctx, session.ID, item.ID))
	require.NoError(t, store.DeleteCartItem(ctx, session.ID, item.ID))

	items, err := store.ListCartItems(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryStorePriceOverrides(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	session := seedSession(t, store, models.SessionActive)

	_, ok, err := store.GetPriceOverride(ctx, session.ID, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetPriceOverride(ctx, session.ID, 100, decimal.RequireFromString("5.00")))
	price, ok, err := store.GetPriceOverride(ctx, session.ID, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("5.00")))

	// Overrides are scoped to their session
	_, ok, err = store.GetPriceOverride(ctx, session.ID+1, 100)
	require.NoError(t, err)
	assert.False(t, ok)
}
