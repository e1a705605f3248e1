// Package client is the messenger's protocol client. It owns the local key
// pair, turns user actions into protocol commands and reports everything the
// server says back as Events.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tukib/dtec-messenger-electron/internal/keystore"
	"github.com/tukib/dtec-messenger-electron/internal/kv"
	"github.com/tukib/dtec-messenger-electron/internal/models"
	"github.com/tukib/dtec-messenger-electron/internal/wire"
)

// DefaultWatchdog is slightly longer than the server's ping period.
const DefaultWatchdog = 11 * time.Second

const eventBuffer = 256

var errWatchdog = errors.New("no ping from server")

// Conn is the transport. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPingHandler(h func(appData string) error)
	Close() error
}

// pendingMessage is a submitted draft waiting for the recipient's key.
type pendingMessage struct {
	to      string
	content string
}

type Client struct {
	mu sync.Mutex

	kv       kv.Store
	keys     *keystore.Generator
	watchdog time.Duration
	now      func() time.Time
	log      *logrus.Entry

	conn  Conn
	gen   uint64
	timer *time.Timer
	state State

	key      *keystore.Key
	username string
	pending  map[string]pendingMessage
	outgoing []models.OutgoingMessage

	events chan Event
}

type Option func(*Client)

func WithKeyGenerator(g *keystore.Generator) Option {
	return func(c *Client) {
		c.keys = g
	}
}

func WithWatchdog(d time.Duration) Option {
	return func(c *Client) {
		c.watchdog = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New returns a disconnected client backed by store. Previously sent
// messages are loaded from it.
func New(store kv.Store, opts ...Option) (*Client, error) {
	c := &Client{
		kv:       store,
		keys:     keystore.New(),
		watchdog: DefaultWatchdog,
		now:      time.Now,
		log:      logrus.WithField("component", "client"),
		pending:  make(map[string]pendingMessage),
		events:   make(chan Event, eventBuffer),
	}
	for _, o := range opts {
		o(c)
	}

	raw, ok, err := store.Get(kv.KeyOutgoingMessages)
	if err != nil {
		return nil, fmt.Errorf("load outgoing messages: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.outgoing); err != nil {
			return nil, fmt.Errorf("decode outgoing messages: %w", err)
		}
	}
	return c, nil
}

// Events must be drained by the caller. Once the buffer is full, handling
// of server lines and Submit block until there is room. EventDisconnected is
// the exception: it is dropped rather than wait, so a disconnect always
// completes.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// HasKey reports whether a key pair was generated on this device, i.e.
// whether the user should log in rather than register.
func (c *Client) HasKey() bool {
	v, ok, err := c.kv.Get(kv.KeyGenerated)
	return err == nil && ok && v == "true"
}

// Dial connects to the server at url.
func (c *Client) Dial(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	c.Attach(conn)
	return nil
}

// Attach takes over conn, replacing any previous transport.
func (c *Client) Attach(conn Conn) {
	c.mu.Lock()
	old := c.conn
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = Connected
	c.username = ""
	c.armWatchdog(gen)
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	conn.SetPingHandler(func(appData string) error {
		c.mu.Lock()
		if c.gen == gen && c.timer != nil {
			c.timer.Reset(c.watchdog)
		}
		c.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	go c.readLoop(conn, gen)

	c.emit(Event{Type: EventConnected})
}

// Close tears down the transport. Local state is kept.
func (c *Client) Close() {
	c.disconnect(0, nil)
}

// Reset forgets the local key pair and sent message history and closes the
// transport.
func (c *Client) Reset() error {
	c.mu.Lock()
	err := c.kv.Delete(kv.KeyOutgoingMessages, kv.KeyGenerated, kv.KeyPublicKey, kv.KeyPrivateKey)
	c.outgoing = nil
	c.key = nil
	c.pending = make(map[string]pendingMessage)
	c.mu.Unlock()

	c.disconnect(0, nil)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (c *Client) armWatchdog(gen uint64) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.watchdog, func() {
		c.disconnect(gen, errWatchdog)
	})
}

// disconnect closes the transport of generation gen, or the current one if
// gen is zero. Stale generations are ignored.
func (c *Client) disconnect(gen uint64, reason error) {
	c.mu.Lock()
	if c.conn == nil || (gen != 0 && gen != c.gen) {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	c.state = Disconnected
	c.username = ""
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	conn.Close()
	if reason != nil {
		c.log.Infof("disconnected: %v", reason)
	}
	select {
	case c.events <- Event{Type: EventDisconnected, Err: reason}:
	default:
		c.log.Warn("event buffer full, dropping disconnected event")
	}
}

func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		_, line, err := conn.ReadMessage()
		if err != nil {
			c.disconnect(gen, err)
			return
		}
		c.handle(gen, line)
	}
}

func (c *Client) emit(events ...Event) {
	for _, e := range events {
		c.events <- e
	}
}

func (c *Client) stamp() wire.Stamp {
	return wire.At(c.now().UnixMilli())
}

// send writes one command. Callers hold c.mu.
func (c *Client) send(cmd string, payload any, signed bool) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	var (
		line []byte
		err  error
	)
	if signed {
		line, err = wire.EncodeSigned(cmd, payload, c.key.Sign)
	} else {
		line, err = wire.Encode(cmd, payload)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// Register claims username for this device's key pair, generating and
// storing one protected by password if none exists yet. The outcome arrives
// as EventLoggedIn or EventRegisterFailed.
func (c *Client) Register(username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	v, ok, err := c.kv.Get(kv.KeyGenerated)
	if err != nil {
		return err
	}
	if ok && v == "true" {
		if err := c.unlock(password); err != nil {
			return err
		}
	} else {
		kp, key, err := c.keys.GenerateKeyPair(password)
		if err != nil {
			return err
		}
		if err := c.kv.Set(kv.KeyPublicKey, kp.PublicKey); err != nil {
			return err
		}
		if err := c.kv.Set(kv.KeyPrivateKey, kp.EncryptedPrivateKey); err != nil {
			return err
		}
		if err := c.kv.Set(kv.KeyGenerated, "true"); err != nil {
			return err
		}
		c.key = key
	}

	return c.send(wire.CmdRegister, wire.RegisterRequest{
		Username:  username,
		PublicKey: c.key.PublicKey(),
		Stamp:     c.stamp(),
	}, true)
}

// Login unlocks the stored key pair with password and authenticates with
// it. A wrong password is reported without contacting the server.
func (c *Client) Login(password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.unlock(password); err != nil {
		return err
	}
	return c.login()
}

func (c *Client) unlock(password string) error {
	encrypted, ok, err := c.kv.Get(kv.KeyPrivateKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoKey
	}
	key, err := keystore.Unlock(encrypted, password)
	if err != nil {
		return ErrWrongPassword
	}
	c.key = key
	return nil
}

func (c *Client) login() error {
	if err := c.send(wire.CmdLogin, wire.LoginRequest{PublicKey: c.key.PublicKey(), Stamp: c.stamp()}, true); err != nil {
		return err
	}
	c.state = Authenticating
	return nil
}

// Submit queues content for delivery to the user named to and returns the
// message id. Progress is reported through events carrying that id.
func (c *Client) Submit(to, content string) (string, error) {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	id := primitive.NewObjectID().Hex()
	c.pending[id] = pendingMessage{to: to, content: content}
	entry := &Entry{
		ID:       id,
		To:       to,
		From:     c.username,
		Time:     c.now().UnixMilli(),
		Content:  content,
		Outgoing: true,
	}
	c.mu.Unlock()

	// Pending must reach the caller before anything the lookup triggers.
	c.emit(Event{Type: EventPending, ID: id, Entry: entry})

	c.mu.Lock()
	err := c.send(wire.CmdWhois, wire.WhoisRequest{User: to, ForMessage: id, Stamp: c.stamp()}, false)
	if err != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if err != nil {
		c.emit(Event{Type: EventFailed, ID: id, Err: err})
		return id, err
	}
	return id, nil
}

func (c *Client) handle(gen uint64, line []byte) {
	frame, err := wire.Decode(line)
	if err != nil {
		c.log.Debugf("ignoring line: %v", err)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	var events []Event
	switch frame.Command {
	case wire.CmdRegisterRes:
		events = c.onRegisterRes(frame)
	case wire.CmdLoginRes:
		events = c.onLoginRes(frame)
	case wire.CmdWhoisRes:
		events = c.onWhoisRes(frame)
	case wire.CmdMsgRes:
		events = c.onMsgRes(frame)
	case wire.CmdHist:
		events = c.onHist(frame)
	case wire.CmdNewMsg:
		events = c.onNewMsg(frame)
	default:
		c.log.Debugf("ignoring command %q", frame.Command)
	}
	c.mu.Unlock()

	c.emit(events...)
}

func (c *Client) decode(frame wire.Frame, v any) bool {
	if err := frame.Unmarshal(v); err != nil {
		c.log.WithField("cmd", frame.Command).Debugf("bad payload: %v", err)
		return false
	}
	return true
}

func (c *Client) onRegisterRes(frame wire.Frame) []Event {
	var res wire.RegisterResponse
	if !c.decode(frame, &res) {
		return nil
	}
	if !res.OK {
		return []Event{{Type: EventRegisterFailed, Username: res.Username, Err: ErrUsernameTaken}}
	}
	if err := c.login(); err != nil {
		c.log.Errorf("login after register: %v", err)
	}
	return nil
}

func (c *Client) onLoginRes(frame wire.Frame) []Event {
	var res wire.LoginResponse
	if !c.decode(frame, &res) {
		return nil
	}
	c.state = Authenticated
	c.username = res.Username
	if err := c.send(wire.CmdGetHist, wire.GetHistRequest{As: c.username, Stamp: c.stamp()}, false); err != nil {
		c.log.Errorf("request history: %v", err)
	}
	return []Event{{Type: EventLoggedIn, Username: res.Username}}
}

func (c *Client) onWhoisRes(frame wire.Frame) []Event {
	var res wire.WhoisResponse
	if !c.decode(frame, &res) {
		return nil
	}
	id := res.ForMessage
	pm, ok := c.pending[id]
	if !ok {
		return nil
	}
	if !res.OK {
		delete(c.pending, id)
		return []Event{{Type: EventFailed, ID: id, Err: ErrRecipientNotFound}}
	}

	ciphertext, err := keystore.EncryptFor(res.PublicKey, pm.content)
	if err == nil {
		err = c.send(wire.CmdMsg, wire.MsgRequest{
			Content: ciphertext,
			To:      pm.to,
			As:      c.username,
			ID:      id,
			Stamp:   c.stamp(),
		}, false)
	}
	if err != nil {
		delete(c.pending, id)
		return []Event{{Type: EventFailed, ID: id, Err: err}}
	}
	return nil
}

func (c *Client) onMsgRes(frame wire.Frame) []Event {
	var res wire.MsgResponse
	if !c.decode(frame, &res) {
		return nil
	}
	pm, ok := c.pending[res.ID]
	if !ok {
		return nil
	}
	delete(c.pending, res.ID)

	if !res.OK {
		return []Event{{Type: EventFailed, ID: res.ID, Err: ErrSendRejected}}
	}

	sent := models.OutgoingMessage{
		ID:      res.ID,
		To:      pm.to,
		From:    c.username,
		Time:    res.ReceiptTime,
		Content: pm.content,
	}
	c.outgoing = append(c.outgoing, sent)
	if err := c.saveOutgoing(); err != nil {
		c.log.Errorf("persist outgoing messages: %v", err)
	}
	return []Event{{Type: EventSent, ID: res.ID, Entry: &Entry{
		ID:       sent.ID,
		To:       sent.To,
		From:     sent.From,
		Time:     sent.Time,
		Content:  sent.Content,
		Outgoing: true,
	}}}
}

func (c *Client) saveOutgoing() error {
	raw, err := json.Marshal(c.outgoing)
	if err != nil {
		return err
	}
	return c.kv.Set(kv.KeyOutgoingMessages, string(raw))
}

func (c *Client) decrypt(ciphertext string) (string, error) {
	if c.key == nil {
		return "", keystore.ErrDecryptionFailed
	}
	return c.key.Decrypt(ciphertext)
}

func (c *Client) onHist(frame wire.Frame) []Event {
	var res wire.HistResponse
	if !c.decode(frame, &res) {
		return nil
	}
	history := MergeHistory(res.Messages, c.outgoing, c.decrypt)
	return []Event{{Type: EventHistory, History: history}}
}

func (c *Client) onNewMsg(frame wire.Frame) []Event {
	var ev wire.NewMsgEvent
	if !c.decode(frame, &ev) {
		return nil
	}
	m := ev.Message
	entry := &Entry{ID: m.ID, To: m.To, From: m.From, Time: m.Time}
	entry.Content, entry.Err = c.decrypt(m.Content)
	return []Event{{Type: EventMessage, ID: m.ID, Entry: entry}}
}
