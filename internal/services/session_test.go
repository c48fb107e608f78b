package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"live-shopping-platform/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("immediate session starts active with an expiry clock", func(t *testing.T) {
		session, err := env.sessions.CreateSession(ctx, &models.SessionCreateRequest{
			ClientID:   1,
			HostUserID: 2,
		})
		require.NoError(t, err)

		assert.Equal(t, models.SessionActive, session.Status)
		assert.NotEmpty(t, session.RoomCode)
		assert.Equal(t, "Live Shopping Session", session.Title)
		require.NotNil(t, session.StartedAt)
		require.NotNil(t, session.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(2*time.Hour), *session.ExpiresAt, time.Minute)
	})

	t.Run("scheduled session waits without a clock", func(t *testing.T) {
		scheduledAt := time.Now().Add(24 * time.Hour)
		session, err := env.sessions.CreateSession(ctx, &models.SessionCreateRequest{
			ClientID:    1,
			HostUserID:  2,
			Title:       "Saturday preview",
			ScheduledAt: &scheduledAt,
		})
		require.NoError(t, err)

		assert.Equal(t, models.SessionScheduled, session.Status)
		assert.Nil(t, session.StartedAt)
		assert.Nil(t, session.ExpiresAt)

		// The scheduled time is persisted, not just consumed as a flag.
		stored, err := env.store.GetSession(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.ScheduledAt)
		assert.True(t, stored.ScheduledAt.Equal(scheduledAt))

		data, err := json.Marshal(stored)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"scheduled_at"`)
	})

	t.Run("invalid request rejected", func(t *testing.T) {
		_, err := env.sessions.CreateSession(ctx, &models.SessionCreateRequest{HostUserID: 2})
		var validationErr *models.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("activating a scheduled session arms the expiry clock", func(t *testing.T) {
		scheduledAt := time.Now().Add(time.Hour)
		session, err := env.sessions.CreateSession(ctx, &models.SessionCreateRequest{
			ClientID:    1,
			HostUserID:  2,
			ScheduledAt: &scheduledAt,
		})
		require.NoError(t, err)

		session, err = env.sessions.UpdateStatus(ctx, session.ID, models.SessionActive)
		require.NoError(t, err)

		assert.Equal(t, models.SessionActive, session.Status)
		require.NotNil(t, session.ExpiresAt)
		require.NotNil(t, session.StartedAt)
	})

	t.Run("pause and resume broadcast status frames", func(t *testing.T) {
		session := env.activeSession(t)

		_, err := env.sessions.UpdateStatus(ctx, session.ID, models.SessionPaused)
		require.NoError(t, err)
		_, err = env.sessions.UpdateStatus(ctx, session.ID, models.SessionActive)
		require.NoError(t, err)

		frames := env.publisher.byType(models.EventSessionStatus)
		require.GreaterOrEqual(t, len(frames), 2)
	})

	t.Run("cancellation publishes a dedicated frame", func(t *testing.T) {
		session := env.activeSession(t)

		_, err := env.sessions.UpdateStatus(ctx, session.ID, models.SessionCancelled)
		require.NoError(t, err)

		assert.Len(t, env.publisher.byType(models.EventSessionCancelled), 1)
	})

	t.Run("illegal transitions surface state machine errors", func(t *testing.T) {
		session := env.activeSession(t)

		_, err := env.sessions.UpdateStatus(ctx, session.ID, models.SessionScheduled)
		var transitionErr *models.InvalidTransitionError
		assert.ErrorAs(t, err, &transitionErr)

		_, err = env.sessions.UpdateStatus(ctx, session.ID, models.SessionEnded)
		require.NoError(t, err)
		_, err = env.sessions.UpdateStatus(ctx, session.ID, models.SessionActive)
		assert.ErrorIs(t, err, models.ErrSessionClosed)
	})
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.activeSession(t)

	_, err := env.cart.AddItem(ctx, session.ID, 1, decimal.NewFromInt(2))
	require.NoError(t, err)

	snapshot, err := env.sessions.Snapshot(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionActive, snapshot.Status)
	require.NotNil(t, snapshot.Cart)
	assert.Len(t, snapshot.Cart.Items, 1)
	assert.True(t, snapshot.Cart.TotalValue.Equal(decimal.RequireFromString("70.00")))

	_, err = env.sessions.Snapshot(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}
