package websocket

import (
	"time"

	"github.com/raaihank/pii-masker/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeMask is sent after values went through a masking function
	EventTypeMask EventType = "mask"
	// EventTypeRequestLog represents a request logging event
	EventTypeRequestLog EventType = "request_log"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// MaskEvent summarises one masking request. It never carries values.
type MaskEvent struct {
	RequestID    string            `json:"request_id"`
	Path         string            `json:"path"`
	ClientIP     string            `json:"client_ip"`
	Findings     []privacy.Finding `json:"findings"`
	Masked       int               `json:"masked"`
	ProcessingMS float64           `json:"processing_ms"`
}

// Kinds returns the distinct kinds in the event findings
func (e MaskEvent) Kinds() []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, f := range e.Findings {
		k := string(f.Kind)
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// RequestLogEvent represents a request logging event
type RequestLogEvent struct {
	RequestID    string        `json:"request_id"`
	Method       string        `json:"method"`
	Path         string        `json:"path"`
	StatusCode   int           `json:"status_code"`
	ClientIP     string        `json:"client_ip"`
	UserAgent    string        `json:"user_agent,omitempty"`
	Duration     time.Duration `json:"duration"`
	RequestSize  int64         `json:"request_size"`
	ResponseSize int64         `json:"response_size"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string   `json:"status"`
	Uptime           string   `json:"uptime"`
	TotalMasked      int64    `json:"total_masked"`
	TotalProcessed   int64    `json:"total_processed"`
	ActiveRules      []string `json:"active_rules"`
	ConnectedClients int      `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType   `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows mask events down to some kinds
type EventFilter struct {
	Kinds      []string `json:"kinds,omitempty"`
	MaskedOnly bool     `json:"masked_only,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
