package realtime

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"live-shopping-platform/internal/config"
	"live-shopping-platform/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// SnapshotProvider builds the authoritative full-state payload for a newly
// connected subscriber
type SnapshotProvider interface {
	Snapshot(ctx context.Context, sessionID int64) (*models.SyncPayload, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades push-endpoint requests and hands the connection to the hub
type Handler struct {
	hub       *Hub
	snapshots SnapshotProvider
	cfg       config.RealtimeConfig
}

// NewHandler creates a new push transport handler
func NewHandler(hub *Hub, snapshots SnapshotProvider, cfg config.RealtimeConfig) *Handler {
	return &Handler{
		hub:       hub,
		snapshots: snapshots,
		cfg:       cfg,
	}
}

// HandleWebSocket serves GET /ws/sessions/{sessionID}. The first frame on
// every connection is SYNC carrying the full cart and status; everything
// after that flows from the hub in commit order.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || sessionID <= 0 {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection for session %d: %v", sessionID, err)
		return
	}

	sub := NewSubscriber(sessionID, conn, h.cfg, h.hub.Unsubscribe)

	// Register before snapshotting so nothing committed after the snapshot
	// is missed. An event that lands in the queue before SYNC is sent is
	// harmless: CART_UPDATED carries the full cart and status events carry
	// the full status, so applying them after the snapshot converges.
	h.hub.Subscribe(sub)

	if err := h.sendSync(r.Context(), conn, sub); err != nil {
		log.Printf("Failed to send SYNC to subscriber %s: %v", sub.ID, err)
		h.hub.Unsubscribe(sub)
		sub.Close()
		return
	}

	log.Printf("Subscriber %s connected to session %d", sub.ID, sessionID)
	sub.Run()
	log.Printf("Subscriber %s disconnected from session %d", sub.ID, sessionID)
}

// sendSync writes the first frame directly; the write pump has not started
// yet, so the snapshot cannot interleave with queued events.
func (h *Handler) sendSync(ctx context.Context, conn *websocket.Conn, sub *Subscriber) error {
	payload, err := h.snapshots.Snapshot(ctx, sub.SessionID)
	if err != nil {
		// Subscribing to a session that does not exist yet is legal; the
		// connection simply receives no SYNC until something is published.
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	event, err := models.NewEvent(models.EventSync, sub.SessionID, payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	return conn.WriteJSON(event)
}
