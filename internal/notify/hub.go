package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/logger"
)

const clientBuffer = 16

type Client struct {
	ID       uuid.UUID
	Outbound chan Event
}

// Hub delivers events to the SSE clients connected to this process.
type Hub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	clients map[uuid.UUID]*Client
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "EventHub"),
		clients: make(map[uuid.UUID]*Client),
	}
}

func (h *Hub) Subscribe() *Client {
	c := &Client{
		ID:       uuid.New(),
		Outbound: make(chan Event, clientBuffer),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.log.Debug("client subscribed", "clientID", c.ID)
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.Outbound)
	h.log.Debug("client unsubscribed", "clientID", c.ID)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish never blocks: a client whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.Outbound <- ev:
		default:
			h.log.Warn("dropping event for slow client", "clientID", c.ID, "event", ev.Type)
		}
	}
	return nil
}

// Deliver is the forwarder callback used by the Redis and Kafka consumers.
func (h *Hub) Deliver(ev Event) {
	_ = h.Publish(context.Background(), ev)
}
