package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	writeWait      = 10 * time.Second    // time allowed to write a message to the peer
	pongWait       = 20 * time.Second    // time allowed to read the next pong message
	pingInterval   = (pongWait * 9) / 10 // send pings to peer with this period
	maxMessageSize = 4 * 1024            // inbound frames are control-only, keep them small
	sendBufSize    = 256                 // per-connection outbound buffer size
	sendTimeout    = 2 * time.Second     // timeout for enqueuing outbound events
)

// Client is one websocket connection belonging to a user. Clients only
// receive; all domain operations go through the HTTP API.
type Client struct {
	ID     string
	userID string
	conn   *websocket.Conn
	hub    *Hub
	egress chan event.WsEvent

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// RegisterClient wires a new connection into the hub and starts its pumps
func RegisterClient(userID string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(h.ctx)

	client := &Client{
		ID:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		hub:    h,
		egress: make(chan event.WsEvent, sendBufSize),
		ctx:    ctx,
		cancel: cancel,
	}

	h.add(client)
	go client.readPump()
	go client.writePump()
	log.Printf("client %s registered for user %s", client.ID, userID)
	return client
}

// readPump consumes frames so close/pong handling works; inbound payloads
// are ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				log.Printf("client disconnected: %s", c.ID)
			} else {
				log.Printf("error reading from client %s: %v", c.ID, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case ev, ok := <-c.egress:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Printf("write to client %s failed: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// SafeSend enqueues an event, reporting false when the client is closed or
// its buffer stays full past timeout.
func (c *Client) SafeSend(ev event.WsEvent, timeout time.Duration) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.egress <- ev:
		return true
	case <-c.ctx.Done():
		return false
	case <-time.After(timeout):
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
	})
}
