package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StateProvider serves full snapshots for clients that ask for a state-sync
// after (re)connecting. The broadcast channel itself never replays events.
type StateProvider interface {
	LiveState(ctx context.Context, code string) (*GameState, error)
}

// StateProviderFunc adapts a function to the StateProvider interface.
type StateProviderFunc func(ctx context.Context, code string) (*GameState, error)

func (f StateProviderFunc) LiveState(ctx context.Context, code string) (*GameState, error) {
	return f(ctx, code)
}

// Hub fans broadcast events out to every websocket client subscribed to a
// session's channel. Delivery is best-effort, at-most-once; slow clients are
// dropped rather than buffered without bound.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	state      StateProvider
}

type Client struct {
	hub         *Hub
	id          string
	socket      *websocket.Conn
	send        chan []byte
	sessionCode string
	userID      uint

	sendMu sync.Mutex
	closed bool
}

// trySend queues a message without blocking. Returns false when the buffer is
// full or the channel is already closed, so the readPump can keep replying to
// pings without racing a concurrent drop.
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Message is the envelope every broadcast event travels in.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func NewHub(state StateProvider) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		state:      state,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("client %s subscribed to session %s (user %d)", client.id, client.sessionCode, client.userID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				log.Printf("client %s left session %s (user %d)", client.id, client.sessionCode, client.userID)
			}
			h.mutex.Unlock()
			client.closeSend()
		}
	}
}

// BroadcastToSession implements Broadcaster.
func (h *Hub) BroadcastToSession(code string, event string, payload any) {
	data, err := json.Marshal(Message{Type: event, Payload: payload})
	if err != nil {
		log.Printf("hub: marshal %s: %v", event, err)
		return
	}

	h.mutex.Lock()
	var dropped []*Client
	for client := range h.clients {
		if client.sessionCode != code {
			continue
		}
		if !client.trySend(data) {
			delete(h.clients, client)
			dropped = append(dropped, client)
		}
	}
	h.mutex.Unlock()

	for _, client := range dropped {
		client.closeSend()
	}
}

// Subscribers reports how many clients are on a session's channel.
func (h *Hub) Subscribers(code string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	n := 0
	for client := range h.clients {
		if client.sessionCode == code {
			n++
		}
	}
	return n
}

// RegisterClient subscribes a websocket connection to a session channel and
// starts its pumps.
func (h *Hub) RegisterClient(conn *websocket.Conn, sessionCode string, userID uint) *Client {
	client := &Client{
		hub:         h,
		id:          uuid.NewString(),
		socket:      conn,
		send:        make(chan []byte, 256),
		sessionCode: sessionCode,
		userID:      userID,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) sendStateSync(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := h.state.LiveState(ctx, client.sessionCode)
	if err != nil {
		log.Printf("hub: state sync for %s: %v", client.sessionCode, err)
		return
	}

	data, err := json.Marshal(Message{Type: EventStateSync, Payload: state})
	if err != nil {
		log.Printf("hub: marshal state sync: %v", err)
		return
	}

	client.trySend(data)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.socket.Close()
	}()

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			data, _ := json.Marshal(Message{Type: "pong"})
			c.trySend(data)
		case "request-state":
			// Reconnecting clients catch up here, not from the channel.
			c.hub.sendStateSync(c)
		default:
			log.Printf("unknown message type %q from client %s", msg.Type, c.id)
		}
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}
