package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Manager manages all WebSocket connections
type Manager struct {
	// topic -> clients watching it; written only by Run
	subscribers map[string]map[*Client]struct{}
	mu          sync.RWMutex

	// Channels for managing connections
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	log zerolog.Logger
}

// Client represents a WebSocket client connection
type Client struct {
	ID    string
	Topic string
	Conn  *websocket.Conn
	Send  chan []byte
}

// BroadcastMessage is a payload for every client watching a topic.
type BroadcastMessage struct {
	Topic   string
	Payload []byte
}

// NewManager creates a new WebSocket manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		subscribers: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *BroadcastMessage, 256), // Buffered for high throughput
		done:        make(chan struct{}),
		log:         log,
	}
}

// Run starts the manager's main loop and closes every client once ctx is done.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case message := <-m.broadcast:
			m.broadcastToTopic(message.Topic, message.Payload)
		}
	}
}

// RegisterClient adds a client to the manager. It reports false once the
// manager has stopped.
func (m *Manager) RegisterClient(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

// UnregisterClient removes a client from the manager
func (m *Manager) UnregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Broadcast sends a message to all clients watching topic
func (m *Manager) Broadcast(topic string, payload []byte) {
	select {
	case m.broadcast <- &BroadcastMessage{Topic: topic, Payload: payload}:
	case <-m.done:
	}
}

func (m *Manager) registerClient(client *Client) {
	m.mu.Lock()
	set, ok := m.subscribers[client.Topic]
	if !ok {
		set = make(map[*Client]struct{})
		m.subscribers[client.Topic] = set
	}
	set[client] = struct{}{}
	m.mu.Unlock()

	m.log.Debug().Str("client_id", client.ID).Str("topic", client.Topic).Msg("client subscribed")

	go client.writePump()
}

// unregisterClient removes a client and closes its send channel. Clients that
// were already removed are ignored.
func (m *Manager) unregisterClient(client *Client) {
	m.mu.Lock()
	set, ok := m.subscribers[client.Topic]
	if ok {
		if _, present := set[client]; !present {
			ok = false
		} else {
			delete(set, client)
			if len(set) == 0 {
				delete(m.subscribers, client.Topic)
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(client.Send)
	m.log.Debug().Str("client_id", client.ID).Str("topic", client.Topic).Msg("client unsubscribed")
}

// broadcastToTopic sends a message to all clients watching topic
func (m *Manager) broadcastToTopic(topic string, payload []byte) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.subscribers[topic]))
	for c := range m.subscribers[topic] {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	count := 0
	for _, client := range clients {
		select {
		case client.Send <- payload:
			count++
		default:
			// A slow client must not block the others.
			m.unregisterClient(client)
		}
	}
	m.log.Debug().Int("clients", count).Str("topic", topic).Msg("broadcast")
}

func (m *Manager) closeAll() {
	m.mu.RLock()
	var clients []*Client
	for _, set := range m.subscribers {
		for c := range set {
			clients = append(clients, c)
		}
	}
	m.mu.RUnlock()
	for _, c := range clients {
		m.unregisterClient(c)
	}
}

// GetSubscriberCount returns the number of clients watching topic
func (m *Manager) GetSubscriberCount(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[topic])
}

// writePump pumps messages from the Send channel to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client input so control frames are processed, and
// unregisters the client when the connection drops.
func (c *Client) readPump(m *Manager) {
	defer m.UnregisterClient(c)

	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.log.Debug().Err(err).Str("client_id", c.ID).Msg("websocket closed")
			}
			return
		}
	}
}
