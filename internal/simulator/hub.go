package simulator

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dev tool, all origins allowed
	},
}

// controlFrame is the inbound subscribe/unsubscribe message from clients.
type controlFrame struct {
	Type     string `json:"type"`
	StreamID int64  `json:"stream_id"`
}

// Hub maps stream id -> connected clients and broadcasts event frames.
type Hub struct {
	mu      sync.RWMutex
	streams map[int64]map[string]*client
	logger  *zap.Logger
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.Mutex
	subs map[int64]struct{}
}

// NewHub creates a socket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{streams: make(map[int64]map[string]*client), logger: logger}
}

// Broadcast sends an event frame to every client subscribed to the stream.
func (h *Hub) Broadcast(streamID int64, frame interface{}) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.RLock()
	clients := h.streams[streamID]
	h.mu.RUnlock()
	for _, c := range clients {
		select {
		case c.send <- raw:
		default:
			// buffer full, skip
		}
	}
}

// SubscriberCount returns how many clients follow a stream.
func (h *Hub) SubscriberCount(streamID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[streamID])
}

func (h *Hub) subscribe(c *client, streamID int64) {
	h.mu.Lock()
	if h.streams[streamID] == nil {
		h.streams[streamID] = make(map[string]*client)
	}
	h.streams[streamID][c.id] = c
	h.mu.Unlock()
	c.mu.Lock()
	c.subs[streamID] = struct{}{}
	c.mu.Unlock()
	h.logger.Debug("client subscribed", zap.String("client_id", c.id), zap.Int64("stream_id", streamID))
}

func (h *Hub) unsubscribe(c *client, streamID int64) {
	h.mu.Lock()
	if m, ok := h.streams[streamID]; ok {
		delete(m, c.id)
		if len(m) == 0 {
			delete(h.streams, streamID)
		}
	}
	h.mu.Unlock()
	c.mu.Lock()
	delete(c.subs, streamID)
	c.mu.Unlock()
}

func (h *Hub) drop(c *client) {
	c.mu.Lock()
	subs := make([]int64, 0, len(c.subs))
	for id := range c.subs {
		subs = append(subs, id)
	}
	c.mu.Unlock()
	for _, id := range subs {
		h.unsubscribe(c, id)
	}
	h.logger.Debug("client dropped", zap.String("client_id", c.id))
}

// ServeWs handles the websocket upgrade and runs the client loop.
func (h *Hub) ServeWs() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		c := &client{
			id:   uuid.New().String(),
			hub:  h,
			conn: conn,
			send: make(chan []byte, 256),
			subs: make(map[int64]struct{}),
		}
		go c.writePump()
		c.readPump()
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame controlFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		switch frame.Type {
		case "subscribe":
			c.hub.subscribe(c, frame.StreamID)
		case "unsubscribe":
			c.hub.unsubscribe(c, frame.StreamID)
		default:
			// ignore
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
