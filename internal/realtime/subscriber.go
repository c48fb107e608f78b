package realtime

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"live-shopping-platform/internal/config"
	"live-shopping-platform/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Subscriber is one live push connection to a session. It owns its
// websocket for the connection's lifetime: a write pump drains the event
// queue and keeps the peer alive with pings, a read pump watches for pongs
// and disconnects. It is never persisted.
type Subscriber struct {
	ID        string
	SessionID int64

	conn         *websocket.Conn
	send         chan models.Event
	cfg          config.RealtimeConfig
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	lastActivity atomic.Int64
	onClose      func(*Subscriber)
}

// NewSubscriber wraps an upgraded websocket connection
func NewSubscriber(sessionID int64, conn *websocket.Conn, cfg config.RealtimeConfig, onClose func(*Subscriber)) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscriber{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		conn:      conn,
		send:      make(chan models.Event, cfg.SendBuffer),
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		onClose:   onClose,
	}
	sub.lastActivity.Store(time.Now().Unix())
	return sub
}

// enqueue queues an event for delivery, reporting false when the buffer is
// full or the subscriber is shutting down
func (s *Subscriber) enqueue(event models.Event) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

// Run starts the read and write pumps and blocks until the connection dies
func (s *Subscriber) Run() {
	go s.writePump()
	s.readPump()
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteJSON(event); err != nil {
				log.Printf("Failed to write %s event to subscriber %s: %v", event.Type, s.ID, err)
				s.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Printf("Failed to ping subscriber %s: %v", s.ID, err)
				s.Close()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// readPump consumes inbound frames. Subscribers never send application
// frames; the pump exists to process pongs and to notice the peer going
// away.
func (s *Subscriber) readPump() {
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.lastActivity.Store(time.Now().Unix())
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.Close()
			return
		}
		s.lastActivity.Store(time.Now().Unix())
	}
}

// LastActivityTime returns the time of the last pong or frame from the peer
func (s *Subscriber) LastActivityTime() time.Time {
	return time.Unix(s.lastActivity.Load(), 0)
}

// Close tears the connection down exactly once and detaches from the hub
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.cancel()

		deadline := time.Now().Add(s.cfg.WriteWait)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil &&
			err != websocket.ErrCloseSent {
			log.Printf("Error sending close message to subscriber %s: %v", s.ID, err)
		}
		s.conn.Close()

		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
