package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
	"github.com/nerrad567/fanbridge/internal/infrastructure/logging"
)

// Hub fans state events out to WebSocket clients.
//
// The hub keeps the last encoded event per channel and replays it to a
// client when it registers or subscribes, so every client starts from the
// current state. Broadcast, replay, and registration share one lock, so a
// client never sees an older event after a newer one.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	last    map[string][]byte
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		last:    make(map[string][]byte),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// Register adds a client and queues the cached event of every channel it
// is subscribed to.
func (h *Hub) Register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	for channel, data := range h.last {
		if c.wants(channel) {
			c.deliver(data)
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", count)
}

// Unregister removes a client and stops its writer. Safe to call twice.
func (h *Hub) Unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", count)
}

// Seed caches an initial event for channel unless a broadcast got there
// first. Nothing is sent.
func (h *Hub) Seed(channel string, payload any) {
	data, err := encodeEvent(channel, payload)
	if err != nil {
		h.logger.Error("encoding seed event", "channel", channel, "error", err)
		return
	}

	h.mu.Lock()
	if _, ok := h.last[channel]; !ok {
		h.last[channel] = data
	}
	h.mu.Unlock()
}

// Broadcast caches an event and queues it for every subscribed client.
// It never blocks; a client with a full buffer misses the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeEvent(channel, payload)
	if err != nil {
		h.logger.Error("encoding broadcast event", "channel", channel, "error", err)
		return
	}

	h.mu.Lock()
	h.last[channel] = data
	recipients := 0
	for c := range h.clients {
		if c.wants(channel) && c.deliver(data) {
			recipients++
		}
	}
	h.mu.Unlock()

	if recipients > 0 {
		h.logger.Debug("event broadcast", "channel", channel, "recipients", recipients)
	}
}

// replay queues the cached event of each channel for c.
func (h *Hub) replay(c *wsClient, channels []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, channel := range channels {
		if data, ok := h.last[channel]; ok {
			c.deliver(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encodeEvent(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}
