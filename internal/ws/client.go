package ws

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tukib/dtec-messenger-electron/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Handler processes one inbound line from a connection. It runs on the
// connection's read goroutine, so lines from one connection are handled in
// order while different connections proceed independently.
type Handler interface {
	HandleMessage(c *Client, message []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Client, message []byte)

func (f HandlerFunc) HandleMessage(c *Client, message []byte) { f(c, message) }

// Client is the server side of one connection: the session.
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	mu     sync.Mutex
	closed bool

	// Owned by the hub goroutine; read by the connection's own read goroutine
	// only after Bind has returned.
	username string

	alive atomic.Bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	c.alive.Store(true)
	return c
}

// Username returns the bound username, or "" before a successful login.
func (c *Client) Username() string {
	return c.username
}

// Send queues a reply for this connection. It reports false if the
// connection is gone or its buffer is full.
func (c *Client) Send(message []byte) bool {
	return c.enqueue(message)
}

func (c *Client) enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection to the handler.
func (c *Client) readPump(handler Handler) {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithField("conn", c.ID).Debugf("read error: %v", err)
			}
			return
		}
		handler.HandleMessage(c, message)
	}
}

// writePump pumps messages from the send channel to the websocket connection
// and runs the heartbeat.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if !c.alive.Swap(false) {
				metrics.HeartbeatTimeouts.Inc()
				c.hub.log.WithField("conn", c.ID).Info("heartbeat timeout")
				return
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, handler Handler, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Debugf("upgrade: %v", err)
		return
	}
	client := newClient(hub, conn)
	if !hub.addClient(client) {
		conn.Close()
		return
	}
	hub.log.WithFields(logrus.Fields{"conn": client.ID, "remote": r.RemoteAddr}).Debug("connected")

	go client.writePump()
	go client.readPump(handler)
}
