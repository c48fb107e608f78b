package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"live-shopping-platform/internal/broker"
	"live-shopping-platform/internal/config"
	"live-shopping-platform/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRealtimeConfig(sendBuffer int) config.RealtimeConfig {
	return config.RealtimeConfig{
		PingInterval: time.Minute,
		PongWait:     time.Minute,
		WriteWait:    time.Second,
		SendBuffer:   sendBuffer,
	}
}

// wsPair returns the server and client halves of a live websocket connection
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server := <-serverConns
	return server, client
}

func seqEvent(t *testing.T, sessionID int64, seq int) models.Event {
	t.Helper()
	event, err := models.NewEvent(models.EventCartUpdated, sessionID, map[string]int{"seq": seq})
	require.NoError(t, err)
	return event
}

func eventSeq(t *testing.T, event models.Event) int {
	t.Helper()
	var payload struct {
		Seq int `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	return payload.Seq
}

func TestHubSubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	conn, _ := wsPair(t)
	sub := NewSubscriber(1, conn, testRealtimeConfig(4), hub.Unsubscribe)

	hub.Subscribe(sub)
	hub.Subscribe(sub)
	assert.Equal(t, 1, hub.SubscriberCount(1))

	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.SubscriberCount(1))
	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.SubscriberCount(1))
}

func TestHubDeliversInPublishOrder(t *testing.T) {
	hub := NewHub()
	conn, _ := wsPair(t)
	sub := NewSubscriber(1, conn, testRealtimeConfig(8), hub.Unsubscribe)
	hub.Subscribe(sub)

	for i := 0; i < 5; i++ {
		hub.Publish(1, seqEvent(t, 1, i))
	}

	for i := 0; i < 5; i++ {
		select {
		case event := <-sub.send:
			assert.Equal(t, i, eventSeq(t, event))
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestHubScopesEventsToSession(t *testing.T) {
	hub := NewHub()
	connA, _ := wsPair(t)
	connB, _ := wsPair(t)
	subA := NewSubscriber(1, connA, testRealtimeConfig(4), hub.Unsubscribe)
	subB := NewSubscriber(2, connB, testRealtimeConfig(4), hub.Unsubscribe)
	hub.Subscribe(subA)
	hub.Subscribe(subB)

	hub.Publish(1, seqEvent(t, 1, 0))

	select {
	case <-subA.send:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session 1 event")
	}
	select {
	case event := <-subB.send:
		t.Fatalf("session 2 subscriber received %s for session %d", event.Type, event.SessionID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubPublishToSessionWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.Publish(42, seqEvent(t, 42, 0))
	})
}

func TestHubEvictsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	slowConn, _ := wsPair(t)
	okConn, _ := wsPair(t)
	slow := NewSubscriber(1, slowConn, testRealtimeConfig(1), hub.Unsubscribe)
	ok := NewSubscriber(1, okConn, testRealtimeConfig(8), hub.Unsubscribe)
	hub.Subscribe(slow)
	hub.Subscribe(ok)
	require.Equal(t, 2, hub.SubscriberCount(1))

	// The slow subscriber's queue holds one event; the second overflows it
	hub.Publish(1, seqEvent(t, 1, 0))
	hub.Publish(1, seqEvent(t, 1, 1))

	assert.Equal(t, 1, hub.SubscriberCount(1), "the stalled subscriber is dropped")

	// The healthy subscriber saw every event in order
	for i := 0; i < 2; i++ {
		select {
		case event := <-ok.send:
			assert.Equal(t, i, eventSeq(t, event))
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	// Publishing keeps working after the eviction
	hub.Publish(1, seqEvent(t, 1, 2))
	select {
	case event := <-ok.send:
		assert.Equal(t, 2, eventSeq(t, event))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for post-eviction event")
	}
}

// fakeRelay captures outbound envelopes and lets tests inject inbound ones
type fakeRelay struct {
	mu        sync.Mutex
	published []broker.Envelope
	handler   func(broker.Envelope)
}

func (r *fakeRelay) Publish(ctx context.Context, env broker.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, env)
	return nil
}

func (r *fakeRelay) Subscribe(ctx context.Context, handler func(broker.Envelope)) error {
	r.mu.Lock()
	r.handler = handler
	r.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (r *fakeRelay) Close() error { return nil }

func (r *fakeRelay) inject(env broker.Envelope) {
	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()
	if handler != nil {
		handler(env)
	}
}

func (r *fakeRelay) publishedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func TestHubRelay(t *testing.T) {
	hub := NewHub()
	relay := &fakeRelay{}
	hub.SetRelay(relay, "instance-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.StartRelay(ctx)
	require.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		return relay.handler != nil
	}, time.Second, 10*time.Millisecond)

	conn, _ := wsPair(t)
	sub := NewSubscriber(1, conn, testRealtimeConfig(4), hub.Unsubscribe)
	hub.Subscribe(sub)

	// Local publishes go out on the relay tagged with our instance
	hub.Publish(1, seqEvent(t, 1, 0))
	require.Equal(t, 1, relay.publishedCount())
	<-sub.send

	// Our own envelopes coming back are dropped
	relay.inject(broker.Envelope{Instance: "instance-a", Event: seqEvent(t, 1, 1)})
	select {
	case event := <-sub.send:
		t.Fatalf("received our own relayed event %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}

	// Envelopes from other instances are delivered locally but not re-relayed
	relay.inject(broker.Envelope{Instance: "instance-b", Event: seqEvent(t, 1, 2)})
	select {
	case event := <-sub.send:
		assert.Equal(t, 2, eventSeq(t, event))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
	assert.Equal(t, 1, relay.publishedCount())
}
