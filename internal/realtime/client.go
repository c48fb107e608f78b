package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"live-shopping-platform/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ConnectionStatus is the client-side connection state exposed for UI and
// observability
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusError        ConnectionStatus = "ERROR"
)

const defaultRetryDelay = 3 * time.Second

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBackOff replaces the default constant 3s reconnect delay
func WithBackOff(b backoff.BackOff) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// WithDialer replaces the default websocket dialer
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// Client consumes a session's push endpoint and mirrors the authoritative
// state locally. A SYNC frame fully replaces local state; every other event
// is applied incrementally by a single dispatch loop. On transport failure
// the client closes the connection and redials after a backoff delay;
// Close cancels any pending redial and stops the loop for good.
type Client struct {
	url     string
	dialer  *websocket.Dialer
	backoff backoff.BackOff

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
	events  chan models.Event

	mu            sync.RWMutex
	cart          *models.CartState
	sessionStatus models.SessionStatus

	connStatus atomic.Value // ConnectionStatus
}

// NewClient creates a reconnecting push client for the given ws URL
func NewClient(url string, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:     url,
		dialer:  websocket.DefaultDialer,
		backoff: backoff.NewConstantBackOff(defaultRetryDelay),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		events:  make(chan models.Event, 16),
	}
	c.connStatus.Store(StatusDisconnected)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the connect/read/reconnect loop. Starting twice, or after
// Close, is a no-op.
func (c *Client) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run()
}

// Close tears the client down: the connection is closed, any pending
// reconnect is cancelled, and no further events are delivered. Closing a
// client that was never started still completes the teardown.
func (c *Client) Close() {
	c.cancel()
	if c.started.CompareAndSwap(false, true) {
		// run() never launched, so its deferred teardown falls to us.
		close(c.events)
		close(c.done)
		return
	}
	<-c.done
}

// Events returns the stream of received events. The channel is closed when
// the client shuts down.
func (c *Client) Events() <-chan models.Event {
	return c.events
}

// ConnectionState reports the current connection status
func (c *Client) ConnectionState() ConnectionStatus {
	return c.connStatus.Load().(ConnectionStatus)
}

// Cart returns the client's view of the session cart
func (c *Client) Cart() *models.CartState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cart
}

// SessionStatus returns the client's view of the session status
func (c *Client) SessionStatus() models.SessionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionStatus
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.connStatus.Store(status)
}

func (c *Client) run() {
	defer func() {
		c.setStatus(StatusDisconnected)
		close(c.events)
		close(c.done)
	}()

	for {
		c.setStatus(StatusConnecting)
		conn, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.setStatus(StatusError)
			log.Printf("Failed to connect to %s: %v", c.url, err)
			if !c.waitRetry() {
				return
			}
			continue
		}

		c.backoff.Reset()
		c.setStatus(StatusConnected)
		c.readLoop(conn)
		conn.Close()

		if c.ctx.Err() != nil {
			return
		}
		c.setStatus(StatusError)
		if !c.waitRetry() {
			return
		}
	}
}

// waitRetry sleeps out the backoff delay, reporting false when the client
// was closed or the policy gave up
func (c *Client) waitRetry() bool {
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		return false
	}
	select {
	case <-time.After(delay):
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	// Unblock ReadMessage when the client is closed mid-read
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-c.ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var event models.Event
		if err := json.Unmarshal(data, &event); err != nil {
			// A malformed frame never crashes the connection or corrupts
			// local state; log it and move on.
			log.Printf("Dropping malformed event: %v", err)
			continue
		}

		c.dispatch(event)

		select {
		case c.events <- event:
		case <-c.ctx.Done():
			return
		}
	}
}

// dispatch applies one event to local state, keyed on event type
func (c *Client) dispatch(event models.Event) {
	switch event.Type {
	case models.EventSync:
		var payload models.SyncPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			log.Printf("Dropping malformed SYNC payload: %v", err)
			return
		}
		// SYNC is an authoritative full replace, never a merge.
		c.mu.Lock()
		c.cart = payload.Cart
		c.sessionStatus = payload.Status
		c.mu.Unlock()

	case models.EventCartUpdated:
		var cart models.CartState
		if err := json.Unmarshal(event.Payload, &cart); err != nil {
			log.Printf("Dropping malformed CART_UPDATED payload: %v", err)
			return
		}
		c.mu.Lock()
		c.cart = &cart
		c.mu.Unlock()

	case models.EventSessionStatus, models.EventSessionCancelled:
		var payload models.StatusPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			log.Printf("Dropping malformed %s payload: %v", event.Type, err)
			return
		}
		c.mu.Lock()
		c.sessionStatus = payload.Status
		c.mu.Unlock()

	case models.EventSessionTimeout:
		var payload models.SessionTimeoutPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			log.Printf("Dropping malformed SESSION_TIMEOUT payload: %v", err)
			return
		}
		c.mu.Lock()
		c.sessionStatus = payload.Status
		c.mu.Unlock()

	case models.EventHighlighted, models.EventItemStatusChanged, models.EventTimeoutWarning, models.EventTimeoutExtended:
		// Carried to the consumer as-is; the next CART_UPDATED or SYNC
		// reflects any state they imply.

	default:
		log.Printf("Ignoring unknown event type %q", event.Type)
	}
}
