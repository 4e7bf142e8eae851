package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	EventMessageNew     = "message:new"
	EventMessageStatus  = "message:status"
	EventFriendRequest  = "friend:request"
	EventFriendAccepted = "friend:accepted"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// StatusUpdate tells a sender that a reader has reached upToSeq in a chat.
type StatusUpdate struct {
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
	UpToSeq  int64  `json:"upToSeq"`
	Status   string `json:"status"`
}

// Notifier delivers events to the connected sessions of the given users.
type Notifier interface {
	Notify(userIDs []string, ev Event)
}

type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: map[string]map[*Client]struct{}{},
		log:     log,
	}
}

func (h *Hub) AddClient(userID string, conn *websocket.Conn) *Client {
	c := h.register(userID, conn)

	go c.writeLoop(h.log)
	go c.keepAliveLoop()

	return c
}

func (h *Hub) register(userID string, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

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

	if c.Conn != nil {
		_ = c.Conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

// Online reports whether userID has at least one open session on this hub.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) Notify(userIDs []string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, uid := range userIDs {
		for c := range h.clients[uid] {
			select {
			case c.Send <- ev:
			default:
				// slow consumer; the client re-fetches on reconnect
				h.log.Warn("ws send buffer full, event dropped",
					zap.String("user_id", uid), zap.String("event", ev.Type))
			}
		}
	}
}

func (c *Client) writeLoop(log *zap.Logger) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.Send:
			writeCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
			if err := wsjson.Write(writeCtx, c.Conn, ev); err != nil {
				log.Debug("ws write failed", zap.String("user_id", c.UserID), zap.Error(err))
			}
			cancel()
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
			_ = c.Conn.Ping(pingCtx)
			cancel()
		}
	}
}
