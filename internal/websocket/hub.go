package feedws

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/events"
	websocket "github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// Hub pushes pass and booking changes to the sockets of the user they concern,
// so open screens can refresh without polling.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan events.Change
	done       chan struct{}
	log        *zap.Logger
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.Change, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

// Run owns the client set until ctx is cancelled. On exit every client's send
// channel is closed, so write pumps finish and later Register or Unregister calls
// return immediately.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					close(client.send)
				}
				delete(h.clients, userID)
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case change := <-h.broadcast:
			h.deliver(change)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		// Run is gone; close here so the write pump finishes.
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify queues the change for delivery. A full queue drops the change rather
// than stall the request that produced it; clients resync on their next read.
func (h *Hub) Notify(_ context.Context, change events.Change) {
	select {
	case h.broadcast <- change:
	default:
		h.log.Warn("change feed queue full, dropping change",
			zap.String("type", change.Type),
			zap.Int64("user_id", change.UserID),
		)
	}
}

func (h *Hub) deliver(change events.Change) {
	encoded, err := json.Marshal(change)
	if err != nil {
		h.log.Error("encode change", zap.Error(err))
		return
	}
	h.sendToUser(strconv.FormatInt(change.UserID, 10), encoded)
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// ReadPump drains the socket until the peer goes away. The feed is one-way, so
// anything the client sends is ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
