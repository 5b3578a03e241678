package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chatline/internal/broker"
	"chatline/internal/models"
	"chatline/internal/observability"
)

const wsRoutingKey = "ws_events.chats"

// Hub tracks live connections per chat and fans chat events out to them.
type Hub struct {
	rooms map[int]map[*Client]struct{}
	mu    sync.RWMutex
	relay broker.Publisher
}

// NewHub creates an empty hub. Events are also relayed to relay when non-nil.
func NewHub(relay broker.Publisher) *Hub {
	return &Hub{
		rooms: make(map[int]map[*Client]struct{}),
		relay: relay,
	}
}

// Register adds a client to its chat room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.chatID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.chatID] = room
	}
	room[c] = struct{}{}
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.chatID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.chatID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// ClientCount returns the number of connections registered on a chat.
func (h *Hub) ClientCount(chatID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// Notify pushes event to every connection on the chat whose user is in
// memberIDs. A connection with a full queue misses the event. Notify never
// blocks on a socket.
func (h *Hub) Notify(ctx context.Context, event models.ChatEvent, memberIDs []int) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Int("chat_id", event.ChatID).Str("event", event.Type).Msg("encode chat event failed")
		return
	}

	allowed := make(map[int]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		allowed[id] = struct{}{}
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[event.ChatID]))
	for c := range h.rooms[event.ChatID] {
		if _, ok := allowed[c.info.UserID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.enqueue(payload) {
			observability.IncWSEvent("push")
			continue
		}
		observability.IncBroadcastDropped()
		log.Warn().
			Int("chat_id", event.ChatID).
			Object("conn", c.info).
			Str("event", event.Type).
			Msg("websocket send queue full, event dropped")
	}

	h.relayEvent(ctx, event)
}

// RelayEvent is the broker form of a chat event.
type RelayEvent struct {
	EventType  string           `json:"event_type"`
	OccurredAt string           `json:"occurred_at"`
	ChatID     int              `json:"chat_id"`
	Event      models.ChatEvent `json:"event"`
}

func (e RelayEvent) PartitionKey() string {
	return fmt.Sprintf("chat:%d", e.ChatID)
}

func routingKeyFor(eventType string) string {
	switch eventType {
	case "message":
		return broker.RoutingMessageCreated
	case "message_updated":
		return broker.RoutingMessageUpdated
	case "message_deleted":
		return broker.RoutingMessageDeleted
	case "receipt":
		return broker.RoutingReceipt
	}
	return "message." + eventType
}

func (h *Hub) relayEvent(ctx context.Context, event models.ChatEvent) {
	if h.relay == nil {
		return
	}
	key := routingKeyFor(event.Type)
	err := h.relay.Publish(ctx, key, RelayEvent{
		EventType:  event.Type,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		ChatID:     event.ChatID,
		Event:      event,
	}, broker.BuildHeaders(observability.RequestID(ctx), observability.TraceID(ctx)))
	if err != nil {
		observability.IncBrokerPublishError(key)
		log.Error().Err(err).Int("chat_id", event.ChatID).Str("routing_key", key).Msg("relay chat event failed")
	}
}

// publishLifecycle relays connection lifecycle events for operational consumers.
func (h *Hub) publishLifecycle(ctx context.Context, c *Client, event, reason string) {
	observability.IncWSEvent(event)
	if h.relay == nil {
		return
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"chat_id":     c.chatID,
			"event":       event,
			"conn_id":     c.info.ConnID,
			"duration_ms": time.Since(c.info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id": c.info.UserID,
			"ip":      c.info.IP,
		},
	}
	err := h.relay.Publish(ctx, wsRoutingKey, map[string]interface{}{
		"event_type": "ws_events",
		"event_name": event,
		"payload":    payload,
	}, broker.BuildHeaders(c.info.RequestID, c.info.TraceID))
	if err != nil {
		observability.IncBrokerPublishError(wsRoutingKey)
		log.Warn().Err(err).Str("conn_id", c.info.ConnID).Msg("publish websocket event failed")
	}
}
