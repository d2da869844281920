package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/masking"
	"github.com/raaihank/pii-masker/internal/privacy"
)

func newClient(id string) *Client {
	return &Client{ID: id, Send: make(chan Event, 8), ConnectedAt: time.Now()}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(&HubConfig{BroadcastMasks: true}, zap.NewNop())
	go hub.Run(ctx)

	client := newClient("c1")
	hub.register <- client

	hub.BroadcastEvent(Event{Type: EventTypeMask, Timestamp: time.Now(), Data: MaskEvent{Masked: 1}})
	ev := receive(t, client)
	assert.Equal(t, EventTypeMask, ev.Type)

	// disabled event types are never queued
	hub.BroadcastEvent(Event{Type: EventTypeRequestLog})
	hub.BroadcastEvent(Event{Type: EventTypeMask, Data: MaskEvent{}})
	ev = receive(t, client)
	assert.Equal(t, EventTypeMask, ev.Type)

	assert.Equal(t, 1, hub.ClientCount())

	cancel()
	select {
	case _, ok := <-client.Send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed on shutdown")
	}
}

func TestShouldSendToClient(t *testing.T) {
	emailEvent := Event{Type: EventTypeMask, Data: MaskEvent{
		Findings: []privacy.Finding{{Field: "email", Kind: masking.KindEmail, Masked: true}},
		Masked:   1,
	}}
	unmaskedEvent := Event{Type: EventTypeMask, Data: MaskEvent{
		Findings: []privacy.Finding{{Field: "ssn", Kind: masking.KindSSN}},
	}}
	requestEvent := Event{Type: EventTypeRequestLog, Data: RequestLogEvent{}}

	c := newClient("c")
	assert.True(t, shouldSendToClient(c, requestEvent), "no subscription gets everything")

	c.Subscription = &SubscriptionRequest{Events: []EventType{EventTypeMask}}
	assert.True(t, shouldSendToClient(c, emailEvent))
	assert.False(t, shouldSendToClient(c, requestEvent))

	c.Subscription.Filter = &EventFilter{Kinds: []string{"ssn"}}
	assert.False(t, shouldSendToClient(c, emailEvent))
	assert.True(t, shouldSendToClient(c, unmaskedEvent))

	c.Subscription.Filter = &EventFilter{MaskedOnly: true}
	assert.True(t, shouldSendToClient(c, emailEvent))
	assert.False(t, shouldSendToClient(c, unmaskedEvent))
}

func TestMaskEventKinds(t *testing.T) {
	ev := MaskEvent{Findings: []privacy.Finding{
		{Kind: masking.KindEmail}, {Kind: masking.KindSSN}, {Kind: masking.KindEmail},
	}}
	assert.Equal(t, []string{"email", "ssn"}, ev.Kinds())
}

func TestHandleWebSocketAuth(t *testing.T) {
	hub := NewHub(&HubConfig{Username: "admin", Password: "secret"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	hub.HandleWebSocket(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.SetBasicAuth("admin", "secret")
	assert.True(t, hub.authorized(req))
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(&HubConfig{AllowedOrigins: []string{"https://ops.example.com"}}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://ops.example.com")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, hub.checkOrigin(req))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", ClientIP(req, false))
	assert.Equal(t, "10.0.0.1", ClientIP(req, true))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.1", ClientIP(req, false))
	assert.Equal(t, "10.0.0.2", ClientIP(req, true))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 172.16.0.1")
	assert.Equal(t, "10.0.0.1", ClientIP(req, false))
	assert.Equal(t, "10.0.0.3", ClientIP(req, true))

	req.RemoteAddr = "not-a-host-port"
	assert.Equal(t, "not-a-host-port", ClientIP(req, false))
}
