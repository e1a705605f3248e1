package ws

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tukib/dtec-messenger-electron/internal/metrics"
)

// DefaultPingPeriod is the server heartbeat interval. A connection that has
// not answered the previous ping when the next one is due is closed.
const DefaultPingPeriod = 10 * time.Second

type bindRequest struct {
	client   *Client
	username string
	done     chan bool
}

type deliverRequest struct {
	username string
	message  []byte
	result   chan bool
}

type onlineRequest struct {
	username string
	result   chan bool
}

// Hub is the registry of live connections. All of its state is owned by the
// Run goroutine; other goroutines talk to it over channels, so a lookup sees
// a session either fully bound or not present at all.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Bound clients by username, in bind order.
	byName map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	bind    chan bindRequest
	deliver chan deliverRequest
	online  chan onlineRequest
	count   chan chan int

	quit     chan struct{}
	stopOnce sync.Once

	pingPeriod time.Duration
	log        *logrus.Entry
}

type Option func(*Hub)

// WithPingPeriod overrides DefaultPingPeriod.
func WithPingPeriod(d time.Duration) Option {
	return func(h *Hub) {
		h.pingPeriod = d
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(h *Hub) {
		h.log = log
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		byName:     make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		bind:       make(chan bindRequest),
		deliver:    make(chan deliverRequest),
		online:     make(chan onlineRequest),
		count:      make(chan chan int),
		quit:       make(chan struct{}),
		pingPeriod: DefaultPingPeriod,
		log:        logrus.WithField("component", "hub"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			metrics.Connections.Inc()
		case client := <-h.unregister:
			h.remove(client)
		case req := <-h.bind:
			req.done <- h.bindClient(req.client, req.username)
		case req := <-h.deliver:
			req.result <- h.deliverTo(req.username, req.message)
		case req := <-h.online:
			req.result <- len(h.byName[req.username]) > 0
		case res := <-h.count:
			res <- len(h.clients)
		case <-h.quit:
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

// Stop ends Run and closes every registered client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Bind associates client with username. It reports false if the client is no
// longer registered, e.g. because it disconnected while its login was being
// processed.
func (h *Hub) Bind(client *Client, username string) bool {
	req := bindRequest{client: client, username: username, done: make(chan bool, 1)}
	select {
	case h.bind <- req:
		return <-req.done
	case <-h.quit:
		return false
	}
}

// Deliver queues message on the first live session bound to username. It
// never blocks on the recipient and reports whether the message was queued.
func (h *Hub) Deliver(username string, message []byte) bool {
	req := deliverRequest{username: username, message: message, result: make(chan bool, 1)}
	select {
	case h.deliver <- req:
		return <-req.result
	case <-h.quit:
		return false
	}
}

// Online reports whether any live session is bound to username.
func (h *Hub) Online(username string) bool {
	req := onlineRequest{username: username, result: make(chan bool, 1)}
	select {
	case h.online <- req:
		return <-req.result
	case <-h.quit:
		return false
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	res := make(chan int, 1)
	select {
	case h.count <- res:
		return <-res
	case <-h.quit:
		return 0
	}
}

func (h *Hub) addClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) removeClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

func (h *Hub) bindClient(client *Client, username string) bool {
	if !h.clients[client] {
		return false
	}
	if client.username == username {
		return true
	}
	if client.username != "" {
		h.unbind(client)
	} else {
		metrics.Sessions.Inc()
	}
	client.username = username
	h.byName[username] = append(h.byName[username], client)
	h.log.WithFields(logrus.Fields{"conn": client.ID, "user": username}).Info("session bound")
	return true
}

func (h *Hub) deliverTo(username string, message []byte) bool {
	sessions := h.byName[username]
	if len(sessions) == 0 {
		return false
	}
	client := sessions[0]
	if client.enqueue(message) {
		return true
	}
	h.log.WithField("conn", client.ID).Warn("send buffer full, dropping connection")
	h.remove(client)
	return false
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	metrics.Connections.Dec()
	if client.username != "" {
		h.unbind(client)
		metrics.Sessions.Dec()
	}
	client.close()
}

func (h *Hub) unbind(client *Client) {
	sessions := h.byName[client.username]
	for i, c := range sessions {
		if c == client {
			sessions = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(sessions) == 0 {
		delete(h.byName, client.username)
	} else {
		h.byName[client.username] = sessions
	}
}
