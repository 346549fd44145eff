package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"roomchat/internal/chat"
	"roomchat/internal/observability"
)

var errSendBufferFull = errors.New("send buffer full")

// Hub tracks live clients by connection id and writes deliveries to their
// send queues.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	log     *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.info.ConnID] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Debug("client registered", zap.String("conn_id", c.info.ConnID), zap.Int("clients", count))
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[c.info.ConnID]; ok && current == c {
		delete(h.clients, c.info.ConnID)
		close(c.send)
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver encodes each event once and queues it for every recipient that is
// still connected. A recipient whose queue is full is disconnected.
func (h *Hub) Deliver(deliveries []chat.Delivery) {
	for _, d := range deliveries {
		if len(d.Recipients) == 0 {
			continue
		}
		payload, err := json.Marshal(d.Event)
		if err != nil {
			h.log.Error("failed to encode event", zap.String("event", d.Event.Event), zap.Error(err))
			continue
		}

		var slow []*Client
		sent := 0
		h.mu.RLock()
		for _, connID := range d.Recipients {
			c, ok := h.clients[connID]
			if !ok {
				observability.IncFanoutDropped("gone")
				continue
			}
			select {
			case c.send <- payload:
				sent++
			default:
				slow = append(slow, c)
			}
		}
		h.mu.RUnlock()

		observability.AddFanoutFrames(d.Event.Event, sent)
		for _, c := range slow {
			observability.IncFanoutDropped("buffer_full")
			h.log.Warn("dropping slow client",
				zap.String("conn_id", c.info.ConnID),
				zap.String("event", d.Event.Event),
			)
			h.publishWSError(c, errSendBufferFull)
			c.close()
		}
	}
}

// CloseAll closes every client connection; their read pumps then clean up.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) publishWSError(c *Client, err error) {
	publishLifecycle(context.Background(), "ws_error", c.info, err.Error())
}

// publishLifecycle emits a ws_events.* envelope for a connection.
func publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey(event), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent(event)
}

func wsRoutingKey(event string) string {
	switch event {
	case "ws_connect":
		return "ws_events.connect"
	case "ws_disconnect":
		return "ws_events.disconnect"
	default:
		return "ws_events.error"
	}
}
