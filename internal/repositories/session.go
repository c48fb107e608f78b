package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"live-shopping-platform/internal/models"

	"github.com/shopspring/decimal"
)

// PostgresSessionStore implements SessionStore on PostgreSQL
type PostgresSessionStore struct {
	db *sql.DB
}

// NewPostgresSessionStore creates a new Postgres-backed session store
func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

const sessionColumns = `id, room_code, client_id, host_user_id, title, internal_notes, status,
	scheduled_at, expires_at, started_at, ended_at, converted_order_id, created_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.Session, error) {
	session := &models.Session{}
	err := row.Scan(
		&session.ID,
		&session.RoomCode,
		&session.ClientID,
		&session.HostUserID,
		&session.Title,
		&session.InternalNotes,
		&session.Status,
		&session.ScheduledAt,
		&session.ExpiresAt,
		&session.StartedAt,
		&session.EndedAt,
		&session.ConvertedOrderID,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return session, nil
}

// CreateSession inserts a new session and assigns its ID
func (s *PostgresSessionStore) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO live_sessions (room_code, client_id, host_user_id, title, internal_notes, status,
			scheduled_at, expires_at, started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := s.db.QueryRowContext(
		ctx,
		query,
		session.RoomCode,
		session.ClientID,
		session.HostUserID,
		session.Title,
		session.InternalNotes,
		session.Status,
		session.ScheduledAt,
		session.ExpiresAt,
		session.StartedAt,
		session.CreatedAt,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (s *PostgresSessionStore) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM live_sessions WHERE id = $1", sessionColumns)
	return scanSession(s.db.QueryRowContext(ctx, query, id))
}

// GetSessionByRoomCode retrieves a session by its shareable room code
func (s *PostgresSessionStore) GetSessionByRoomCode(ctx context.Context, roomCode string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM live_sessions WHERE room_code = $1", sessionColumns)
	return scanSession(s.db.QueryRowContext(ctx, query, roomCode))
}

// ListSessions retrieves sessions matching the given filters
func (s *PostgresSessionStore) ListSessions(ctx context.Context, filters SessionFilters) ([]*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM live_sessions WHERE 1=1", sessionColumns)
	args := []interface{}{}
	argCount := 0

	if filters.Status != "" {
		argCount++
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
	}
	if filters.ClientID > 0 {
		argCount++
		query += fmt.Sprintf(" AND client_id = $%d", argCount)
		args = append(args, filters.ClientID)
	}

	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		argCount++
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filters.Limit)
	}
	if filters.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filters.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// TransitionSession commits a validated status change atomically. The row is
// locked for the duration of the transaction so two racing transitions can
// never both commit.
func (s *PostgresSessionStore) TransitionSession(ctx context.Context, id int64, next models.SessionStatus) (*models.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM live_sessions WHERE id = $1 FOR UPDATE", sessionColumns)
	session, err := scanSession(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := session.ApplyTransition(next, time.Now()); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE live_sessions
		SET status = $1, expires_at = $2, started_at = $3, ended_at = $4
		WHERE id = $5`,
		session.Status,
		session.ExpiresAt,
		session.StartedAt,
		session.EndedAt,
		session.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status transition: %w", err)
	}
	return session, nil
}

// SetSessionExpiry updates the expiry clock
func (s *PostgresSessionStore) SetSessionExpiry(ctx context.Context, id int64, expiresAt *time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE live_sessions SET expires_at = $1 WHERE id = $2", expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to set session expiry: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

const cartItemColumns = `id, session_id, batch_id, product_id, product_name, quantity, unit_price,
	price_overridden, is_highlighted, item_status, is_sample, added_at`

func scanCartItem(row interface{ Scan(...interface{}) error }) (*models.CartItem, error) {
	item := &models.CartItem{}
	err := row.Scan(
		&item.ID,
		&item.SessionID,
		&item.BatchID,
		&item.ProductID,
		&item.ProductName,
		&item.Quantity,
		&item.UnitPrice,
		&item.PriceOverridden,
		&item.IsHighlighted,
		&item.Status,
		&item.IsSample,
		&item.AddedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListCartItems returns the session cart lines in insertion order
func (s *PostgresSessionStore) ListCartItems(ctx context.Context, sessionID int64) ([]models.CartItem, error) {
	query := fmt.Sprintf("SELECT %s FROM session_cart_items WHERE session_id = $1 ORDER BY added_at, id", cartItemColumns)
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetCartItem retrieves a single cart line, nil if absent
func (s *PostgresSessionStore) GetCartItem(ctx context.Context, sessionID, itemID int64) (*models.CartItem, error) {
	query := fmt.Sprintf("SELECT %s FROM session_cart_items WHERE session_id = $1 AND id = $2", cartItemColumns)
	item, err := scanCartItem(s.db.QueryRowContext(ctx, query, sessionID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return item, nil
}

// FindCartItemByBatch retrieves the line for a batch, nil if absent
func (s *PostgresSessionStore) FindCartItemByBatch(ctx context.Context, sessionID, batchID int64) (*models.CartItem, error) {
	query := fmt.Sprintf("SELECT %s FROM session_cart_items WHERE session_id = $1 AND batch_id = $2", cartItemColumns)
	item, err := scanCartItem(s.db.QueryRowContext(ctx, query, sessionID, batchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find cart item by batch: %w", err)
	}
	return item, nil
}

// InsertCartItem inserts a new cart line and assigns its ID
func (s *PostgresSessionStore) InsertCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO session_cart_items (session_id, batch_id, product_id, product_name, quantity,
			unit_price, price_overridden, is_highlighted, item_status, is_sample, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := s.db.QueryRowContext(
		ctx,
		query,
		item.SessionID,
		item.BatchID,
		item.ProductID,
		item.ProductName,
		item.Quantity,
		item.UnitPrice,
		item.PriceOverridden,
		item.IsHighlighted,
		item.Status,
		item.IsSample,
		item.AddedAt,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	return nil
}

// UpdateCartItem updates an existing cart line
func (s *PostgresSessionStore) UpdateCartItem(ctx context.Context, item *models.CartItem) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_cart_items
		SET quantity = $1, unit_price = $2, price_overridden = $3, is_highlighted = $4,
			item_status = $5, is_sample = $6
		WHERE session_id = $7 AND id = $8`,
		item.Quantity,
		item.UnitPrice,
		item.PriceOverridden,
		item.IsHighlighted,
		item.Status,
		item.IsSample,
		item.SessionID,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return nil
}

// DeleteCartItem removes a cart line. Deleting an absent line is not an error.
func (s *PostgresSessionStore) DeleteCartItem(ctx context.Context, sessionID, itemID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM session_cart_items WHERE session_id = $1 AND id = $2", sessionID, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}

// ClearHighlights resets the highlight flag on every line in the session
func (s *PostgresSessionStore) ClearHighlights(ctx context.Context, sessionID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE session_cart_items SET is_highlighted = FALSE WHERE session_id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear highlights: %w", err)
	}
	return nil
}

// SetPriceOverride records a staff price override for a product in this session
func (s *PostgresSessionStore) SetPriceOverride(ctx context.Context, sessionID, productID int64, price decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_price_overrides (session_id, product_id, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, product_id) DO UPDATE SET price = EXCLUDED.price`,
		sessionID, productID, price)
	if err != nil {
		return fmt.Errorf("failed to set price override: %w", err)
	}
	return nil
}

// GetPriceOverride looks up a recorded override for a product in this session
func (s *PostgresSessionStore) GetPriceOverride(ctx context.Context, sessionID, productID int64) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		"SELECT price FROM session_price_overrides WHERE session_id = $1 AND product_id = $2",
		sessionID, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("failed to get price override: %w", err)
	}
	return price, true, nil
}
