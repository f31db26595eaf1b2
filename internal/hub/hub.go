package hub

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/event"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks connected clients per user and pushes typed events to them.
// Delivery is best-effort: a slow or gone client never blocks the caller.
type Hub struct {
	mu      sync.RWMutex
	users   map[string]map[string]*Client
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		users:  make(map[string]map[string]*Client),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ServeWS upgrades the request and registers the connection for userID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	RegisterClient(userID, conn, h)
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		c.Close()
		return
	}
	clients, ok := h.users[c.userID]
	if !ok {
		clients = make(map[string]*Client)
		h.users[c.userID] = clients
	}
	clients[c.ID] = c
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.users[c.userID]; ok {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(h.users, c.userID)
		}
	}
}

// PushToUser delivers an event to every open connection the user holds
func (h *Hub) PushToUser(userID string, ev event.WsEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.SafeSend(ev, sendTimeout) {
			log.Printf("dropping event for slow client %s (user %s)", c.ID, userID)
		}
	}
}

// PushToUsers fans one event out to several users
func (h *Hub) PushToUsers(userIDs []string, ev event.WsEvent) {
	for _, userID := range userIDs {
		h.PushToUser(userID, ev)
	}
}

// Stop closes every connection and refuses new registrations
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	var all []*Client
	for _, clients := range h.users {
		for _, c := range clients {
			all = append(all, c)
		}
	}
	h.users = make(map[string]map[string]*Client)
	h.mu.Unlock()

	h.cancel()
	for _, c := range all {
		c.Close()
	}

	// give write pumps a moment to flush close frames
	time.Sleep(100 * time.Millisecond)
}
