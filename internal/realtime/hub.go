package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
	pingTimeout  = 5 * time.Second
)

// Event is what websocket clients receive. Data carries the update fields.
type Event struct {
	Kind string                 `json:"kind"`
	Data map[string]interface{} `json:"data"`
}

type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// Hub keeps the open websocket connections of every user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients: map[string]map[*Client]struct{}{},
		log:     log.WithField("component", "hub"),
	}
}

func (h *Hub) AddClient(userID string, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan Event, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"user_id": userID, "client_id": c.ID}).Debug("client connected")

	go h.writeLoop(c)
	go c.keepAliveLoop()

	return c
}

func (h *Hub) RemoveClient(c *Client) {
	c.cancel()

	h.mu.Lock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"user_id": c.UserID, "client_id": c.ID}).Debug("client disconnected")
	_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Publish queues the event for every connection of the audience and returns
// how many connections it was queued for. Full queues drop the event.
func (h *Hub) Publish(audience []string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	seen := make(map[string]struct{}, len(audience))
	for _, uid := range audience {
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}

		for c := range h.clients[uid] {
			select {
			case c.send <- ev:
				delivered++
			default:
				h.log.WithFields(logrus.Fields{"user_id": uid, "client_id": c.ID}).Warn("send queue is full, event dropped")
			}
		}
	}
	return delivered
}

// Connections returns the number of open connections of the user.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) writeLoop(c *Client) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.send:
			writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, ev)
			cancel()
			if err != nil {
				h.log.WithError(err).WithField("client_id", c.ID).Debug("write failed")
			}
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, pingTimeout)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}
