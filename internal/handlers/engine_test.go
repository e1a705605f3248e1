package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tukib/dtec-messenger-electron/internal/auth"
	"github.com/tukib/dtec-messenger-electron/internal/keystore"
	"github.com/tukib/dtec-messenger-electron/internal/store"
	"github.com/tukib/dtec-messenger-electron/internal/store/sqlstore"
	"github.com/tukib/dtec-messenger-electron/internal/wire"
	"github.com/tukib/dtec-messenger-electron/internal/ws"
)

type harness struct {
	t      *testing.T
	store  store.Store
	hub    *ws.Hub
	engine *Engine
	srv    *httptest.Server
}

func newHarness(t *testing.T, wrap func(store.Store) store.Store, opts ...Option) *harness {
	t.Helper()
	sqlStore, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	var st store.Store = sqlStore
	if wrap != nil {
		st = wrap(st)
	}

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	engine := NewEngine(st, hub, opts...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, engine, w, r)
	}))
	t.Cleanup(srv.Close)

	return &harness{t: t, store: st, hub: hub, engine: engine, srv: srv}
}

type peer struct {
	t     *testing.T
	conn  *websocket.Conn
	lines chan string
}

func (h *harness) dial() *peer {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { conn.Close() })

	p := &peer{t: h.t, conn: conn, lines: make(chan string, 16)}
	go func() {
		defer close(p.lines)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p.lines <- string(msg)
		}
	}()
	return p
}

func (p *peer) sendRaw(line string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteMessage(websocket.TextMessage, []byte(line)))
}

func (p *peer) send(cmd string, payload any) {
	p.t.Helper()
	line, err := wire.Encode(cmd, payload)
	require.NoError(p.t, err)
	p.sendRaw(string(line))
}

func (p *peer) sendSigned(key *keystore.Key, cmd string, payload any) string {
	p.t.Helper()
	line, err := wire.EncodeSigned(cmd, payload, key.Sign)
	require.NoError(p.t, err)
	p.sendRaw(string(line))
	return string(line)
}

func (p *peer) expect(cmd string, v any) {
	p.t.Helper()
	select {
	case line, ok := <-p.lines:
		require.True(p.t, ok, "connection closed while waiting for %s", cmd)
		f, err := wire.Decode([]byte(line))
		require.NoError(p.t, err)
		require.Equal(p.t, cmd, f.Command, "line: %s", line)
		if v != nil {
			require.NoError(p.t, json.Unmarshal(f.Payload, v))
		}
	case <-time.After(3 * time.Second):
		p.t.Fatalf("timed out waiting for %s", cmd)
	}
}

func (p *peer) expectNothing() {
	p.t.Helper()
	select {
	case line := <-p.lines:
		p.t.Fatalf("unexpected reply: %s", line)
	case <-time.After(150 * time.Millisecond):
	}
}

var keyGen = keystore.New(keystore.WithKeyBits(1024), keystore.WithScryptCost(1<<10))

func newKey(t *testing.T) (keystore.KeyPair, *keystore.Key) {
	t.Helper()
	kp, key, err := keyGen.GenerateKeyPair("pw")
	require.NoError(t, err)
	return kp, key
}

func nowStamp() wire.Stamp {
	return wire.At(time.Now().UnixMilli())
}

// registerAndLogin brings a peer to the authenticated state.
func (h *harness) registerAndLogin(username string) (*peer, *keystore.Key) {
	h.t.Helper()
	kp, key := newKey(h.t)
	p := h.dial()

	p.sendSigned(key, wire.CmdRegister, wire.RegisterRequest{Username: username, PublicKey: kp.PublicKey, Stamp: nowStamp()})
	var reg wire.RegisterResponse
	p.expect(wire.CmdRegisterRes, &reg)
	require.True(h.t, reg.OK)

	p.sendSigned(key, wire.CmdLogin, wire.LoginRequest{PublicKey: kp.PublicKey, Stamp: nowStamp()})
	var login wire.LoginResponse
	p.expect(wire.CmdLoginRes, &login)
	require.Equal(h.t, username, login.Username)
	return p, key
}

func TestMalformedInputIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	p := h.dial()

	for _, line := range []string{
		"garbage",
		"whois not-json",
		`whois ["x"]`,
		`nosuchcommand {"t":` + jsonInt(time.Now().UnixMilli()) + `}`,
	} {
		p.sendRaw(line)
	}
	p.expectNothing()

	// The connection survives.
	p.send(wire.CmdWhois, wire.WhoisRequest{User: "nobody", ForMessage: "m1", Stamp: nowStamp()})
	var res wire.WhoisResponse
	p.expect(wire.CmdWhoisRes, &res)
	require.False(t, res.OK)
	require.Equal(t, "m1", res.ForMessage)
}

func TestFreshnessIsCheckedBeforeSignature(t *testing.T) {
	h := newHarness(t, nil)
	p := h.dial()
	kp, key := newKey(t)
	now := time.Now().UnixMilli()

	for _, stamp := range []wire.Stamp{
		{},
		wire.At(now - 6000),
		wire.At(now + 60_000),
	} {
		p.sendSigned(key, wire.CmdRegister, wire.RegisterRequest{Username: "alice", PublicKey: kp.PublicKey, Stamp: stamp})
		p.expectNothing()
	}

	// Unsigned commands are subject to the same check.
	p.send(wire.CmdWhois, wire.WhoisRequest{User: "alice", ForMessage: "x", Stamp: wire.At(now - 6000)})
	p.expectNothing()
}

func TestReplayedRequestIsDropped(t *testing.T) {
	h := newHarness(t, nil, WithReplayGuard(auth.NewMemoryGuard(auth.DefaultWindow)))
	kp, key := newKey(t)
	p := h.dial()

	line := p.sendSigned(key, wire.CmdRegister, wire.RegisterRequest{Username: "alice", PublicKey: kp.PublicKey, Stamp: nowStamp()})
	var res wire.RegisterResponse
	p.expect(wire.CmdRegisterRes, &res)
	require.True(t, res.OK)

	p.sendRaw(line)
	p.expectNothing()
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestRestampedRetryIsAccepted(t *testing.T) {
	h := newHarness(t, nil, WithReplayGuard(auth.NewMemoryGuard(auth.DefaultWindow)))
	p, key := h.registerAndLogin("alice")

	login := wire.LoginRequest{PublicKey: key.PublicKey(), Stamp: nowStamp()}
	line := p.sendSigned(key, wire.CmdLogin, login)
	var res wire.LoginResponse
	p.expect(wire.CmdLoginRes, &res)
	assert.Equal(t, "alice", res.Username)

	// The identical line is a replay.
	p.sendRaw(line)
	p.expectNothing()

	// A retry carries a new timestamp and therefore a new signature.
	time.Sleep(2 * time.Millisecond)
	p.sendSigned(key, wire.CmdLogin, wire.LoginRequest{PublicKey: key.PublicKey(), Stamp: nowStamp()})
	p.expect(wire.CmdLoginRes, &res)
	assert.Equal(t, "alice", res.Username)
}
