package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
)

const (
	maxConnsPerUser = 10
	writeWait       = 5 * time.Second
	sendQueueSize   = 16
)

// Event is the JSON frame pushed to connected regulators.
type Event struct {
	Type   string         `json:"type"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Report *models.Report `json:"report,omitempty"`
}

// hubClient owns the writes to one connection. Frames are queued on send and
// written by its own goroutine.
type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *hubClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub keeps the live WebSocket connections of regulators.
type Hub struct {
	connections map[int64]map[*websocket.Conn]*hubClient // userID -> connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[int64]map[*websocket.Conn]*hubClient),
		logger:      logger,
	}
}

// AddConnection registers conn for userID. It reports false when the user
// already has the maximum number of connections.
func (h *Hub) AddConnection(userID int64, conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[userID]; !exists {
		h.connections[userID] = make(map[*websocket.Conn]*hubClient)
	}
	if len(h.connections[userID]) >= maxConnsPerUser {
		h.logger.Warnf("Max connections reached for user %d", userID)
		return false
	}
	c := &hubClient{conn: conn, send: make(chan []byte, sendQueueSize), done: make(chan struct{})}
	h.connections[userID][conn] = c
	go h.writePump(userID, c)
	h.logger.Infof("Added WebSocket connection for user %d (total: %d)", userID, len(h.connections[userID]))
	return true
}

// RemoveConnection unregisters conn. The caller still owns closing it.
func (h *Hub) RemoveConnection(userID int64, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.removeLocked(userID, conn) {
		h.logger.Infof("Removed WebSocket connection for user %d (remaining: %d)", userID, len(h.connections[userID]))
	}
}

func (h *Hub) removeLocked(userID int64, conn *websocket.Conn) bool {
	conns, exists := h.connections[userID]
	if !exists {
		return false
	}
	c, ok := conns[conn]
	if !ok {
		return false
	}
	c.stop()
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.connections, userID)
	}
	return true
}

// drop unregisters and closes a connection that failed or fell behind.
func (h *Hub) drop(userID int64, c *hubClient) {
	h.mutex.Lock()
	h.removeLocked(userID, c.conn)
	h.mutex.Unlock()
	_ = c.conn.Close()
}

func (h *Hub) writePump(userID int64, c *hubClient) {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Errorf("Failed to send WebSocket message to user %d: %v", userID, err)
				h.drop(userID, c)
				return
			}
		}
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	n := 0
	for _, conns := range h.connections {
		n += len(conns)
	}
	return n
}

// Broadcast queues message for every connection and returns how many accepted
// it. It never waits on the network; a connection whose queue is full is dropped.
func (h *Hub) Broadcast(message []byte) int {
	var slow []*hubClient
	var slowUsers []int64

	h.mutex.Lock()
	queued := 0
	for userID, conns := range h.connections {
		for _, c := range conns {
			select {
			case c.send <- message:
				queued++
			default:
				slow = append(slow, c)
				slowUsers = append(slowUsers, userID)
			}
		}
	}
	for i, c := range slow {
		h.removeLocked(slowUsers[i], c.conn)
	}
	h.mutex.Unlock()

	for i, c := range slow {
		h.logger.Warnf("WebSocket client of user %d is too slow, disconnecting", slowUsers[i])
		_ = c.conn.Close()
	}
	return queued
}

// Announce pushes the report to every connected regulator.
func (h *Hub) Announce(_ context.Context, report models.Report, msg models.Message) error {
	payload, err := json.Marshal(Event{Type: "report", Title: msg.Title, Body: msg.Body, Report: &report})
	if err != nil {
		return fmt.Errorf("failed to encode WebSocket event: %w", err)
	}
	n := h.Broadcast(payload)
	h.logger.Debugf("Report %d announced to %d WebSocket connections", report.ID, n)
	return nil
}

// Close closes every connection.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for userID, conns := range h.connections {
		for conn, c := range conns {
			c.stop()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
		delete(h.connections, userID)
	}
}
