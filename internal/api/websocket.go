package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Enforce same-origin policy for WebSocket upgrades
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}
		host := r.Host
		if rest, ok := strings.CutPrefix(origin, "http://"); ok {
			return rest == host
		}
		if rest, ok := strings.CutPrefix(origin, "https://"); ok {
			return rest == host
		}
		return false
	},
}

// WSMessage is one frame of the status stream.
type WSMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// StatusFunc produces the document published on the "status" topic.
type StatusFunc func(ctx context.Context) (any, error)

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool
	mu     sync.Mutex
}

func (c *wsClient) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

// WSManager fans the service status out to websocket clients. Every client
// receives "status"; other topics need a subscribe message:
//
//	{"action": "subscribe", "topics": ["settings"]}
type WSManager struct {
	clients map[*wsClient]bool
	mutex   sync.RWMutex

	status    StatusFunc
	interval  time.Duration
	logger    *logging.Logger
	triggerCh chan struct{}
	startOnce sync.Once
}

// NewWSManager creates a manager publishing status every interval once
// started.
func NewWSManager(status StatusFunc, interval time.Duration, logger *logging.Logger) *WSManager {
	if interval <= 0 {
		interval = config.DefaultStreamInterval
	}
	return &WSManager{
		clients:   make(map[*wsClient]bool),
		status:    status,
		interval:  interval,
		logger:    logger.WithComponent("ws"),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start runs the status loop until ctx is cancelled, then disconnects every
// client. Later calls are no-ops.
func (m *WSManager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.statusLoop(ctx)
	})
}

func (m *WSManager) add(client *wsClient) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.clients[client] = true
}

func (m *WSManager) remove(client *wsClient) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.clients[client]; ok {
		delete(m.clients, client)
		close(client.send)
	}
}

func (m *WSManager) closeAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for client := range m.clients {
		delete(m.clients, client)
		close(client.send)
	}
}

// Publish sends a message to all clients subscribed to the given topic
func (m *WSManager) Publish(topic string, data any) {
	msg, err := json.Marshal(WSMessage{Topic: topic, Data: data})
	if err != nil {
		m.logger.Warn("Failed to encode stream message", "topic", topic, "error", err)
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for client := range m.clients {
		if topic != "status" && !client.subscribed(topic) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			// Client buffer full, skip
		}
	}
}

// Clients returns the number of connected clients.
func (m *WSManager) Clients() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// TriggerStatusUpdate forces an immediate status broadcast
func (m *WSManager) TriggerStatusUpdate() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
		// Already triggered
	}
}

func (m *WSManager) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.publishStatus(ctx)
		case <-m.triggerCh:
			m.publishStatus(ctx)
		}
	}
}

func (m *WSManager) publishStatus(ctx context.Context) {
	if m.Clients() == 0 {
		return
	}
	status, err := m.status(ctx)
	if err != nil {
		m.logger.Warn("Failed to fetch status for stream", "error", err)
		return
	}
	m.Publish("status", status)
}

// readPump handles incoming messages from a client (subscriptions)
func (c *wsClient) readPump(m *WSManager) {
	defer m.remove(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Action string   `json:"action"`
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.mu.Lock()
		switch msg.Action {
		case "subscribe":
			for _, topic := range msg.Topics {
				c.topics[topic] = true
			}
		case "unsubscribe":
			for _, topic := range msg.Topics {
				delete(c.topics, topic)
			}
		}
		c.mu.Unlock()
	}
}

// writePump sends messages to the client
func (c *wsClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// handleStatusWS upgrades the connection and streams the service status.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		s.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		topics: make(map[string]bool),
	}
	s.ws.add(client)

	go client.writePump()
	go client.readPump(s.ws)

	s.ws.TriggerStatusUpdate()
}
