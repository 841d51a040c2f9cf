package livescore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iderdiyok/basketball-tourney/scorer"
)

const (
	MessageScoreUpdated = "SCORE_UPDATED"
	MessageNotification = "NOTIFICATION"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var ErrHubStopped = errors.New("livescore hub stopped")

type WebSocketMessage struct {
	Type    string      `json:"type"`              // SCORE_UPDATED или NOTIFICATION
	Payload interface{} `json:"payload"`           // Snapshot или Notification
	RoomID  string      `json:"room_id,omitempty"` // комната игры, game_<id>
}

func RoomForGame(gameID int) string {
	return "game_" + strconv.Itoa(gameID)
}

// Client is one spectator connection. closed is guarded by the hub mutex.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	room       string
	registered chan struct{}
	closed     bool
}

func NewClient(hub *Hub, conn *websocket.Conn, room string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		room:       room,
		registered: make(chan struct{}),
	}
}

// Hub fans scorer snapshots and notifications out to spectators, one room per game.
// The latest score of each room is replayed to clients joining later.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	last  map[string][]byte

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		last:       make(map[string][]byte),
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.rooms {
				for c := range clients {
					h.closeClientLocked(c)
				}
			}
			h.rooms = make(map[string]map[*Client]struct{})
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[c.room]; !ok {
				h.rooms[c.room] = make(map[*Client]struct{})
			}
			h.rooms[c.room][c] = struct{}{}
			if last, ok := h.last[c.room]; ok {
				select {
				case c.send <- last:
				default:
				}
			}
			n := len(h.rooms[c.room])
			h.mu.Unlock()
			close(c.registered)
			h.logger.Debug("spectator joined", slog.String("room", c.room), slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[c.room]; ok {
				if _, ok := clients[c]; ok {
					h.closeClientLocked(c)
					delete(clients, c)
					if len(clients) == 0 {
						delete(h.rooms, c.room)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("spectator left", slog.String("room", c.room))
		}
	}
}

func (h *Hub) closeClientLocked(c *Client) {
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

// Register returns once the client is in its room.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	select {
	case h.register <- c:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.registered:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of spectators in a room.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Observe implements scorer.Observer.
func (h *Hub) Observe(snap scorer.Snapshot) {
	h.broadcast(RoomForGame(snap.GameID), MessageScoreUpdated, snap, true)
}

// Notify implements scorer.Notifier.
func (h *Hub) Notify(n scorer.Notification) {
	h.broadcast(RoomForGame(n.GameID), MessageNotification, n, false)
}

// broadcast never blocks: a spectator with a full buffer misses the message.
func (h *Hub) broadcast(room, msgType string, payload interface{}, remember bool) {
	data, err := json.Marshal(WebSocketMessage{Type: msgType, Payload: payload, RoomID: room})
	if err != nil {
		h.logger.Error("failed to marshal live message", slog.String("room", room), slog.Any("error", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if remember {
		h.last[room] = data
	}
	for c := range h.rooms[room] {
		if c.closed {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("spectator send buffer full, message dropped", slog.String("room", room))
		}
	}
}

// Forget drops the replayed score of a closed game.
func (h *Hub) Forget(gameID int) {
	h.mu.Lock()
	delete(h.last, RoomForGame(gameID))
	h.mu.Unlock()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	// Зрители ничего не отправляют, читаем только ради pong и закрытия.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("spectator connection error", slog.String("room", c.room), slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("spectator write failed", slog.String("room", c.room), slog.Any("error", err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
