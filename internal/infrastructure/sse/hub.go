package sse

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var ErrClientNotFound = errors.New("sse client not found")

// Message is one server-sent event.
type Message struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client is an open stream. Kinds limits delivery to matching events; empty means all.
type Client struct {
	ID          string
	Kinds       []string
	ConnectedAt time.Time
	Messages    chan *Message
}

func NewClient(id string, kinds []string) *Client {
	return &Client{
		ID:          id,
		Kinds:       kinds,
		ConnectedAt: time.Now().UTC(),
		Messages:    make(chan *Message, 100),
	}
}

func (c *Client) wants(event string) bool {
	if len(c.Kinds) == 0 {
		return true
	}
	for _, k := range c.Kinds {
		if k == event {
			return true
		}
	}
	return false
}

// Hub manages SSE clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[client.ID]; ok {
		close(old.Messages)
	}
	h.clients[client.ID] = client
}

// Unregister removes client. A newer client registered under the same ID is left alone.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.ID] == client {
		close(client.Messages)
		delete(h.clients, client.ID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers msg to every interested client. Slow clients drop messages.
func (h *Hub) Broadcast(msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		if c.wants(msg.Event) && trySend(c, msg) {
			sent++
		}
	}
	return sent
}

func (h *Hub) SendToClient(clientID string, msg *Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.clients[clientID]
	if c == nil {
		return ErrClientNotFound
	}
	if !trySend(c, msg) {
		return errors.New("sse client buffer full")
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.Messages)
		delete(h.clients, id)
	}
}

func trySend(c *Client, msg *Message) bool {
	select {
	case c.Messages <- msg:
		return true
	default:
		return false
	}
}
