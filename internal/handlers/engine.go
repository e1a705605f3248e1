package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/tukib/dtec-messenger-electron/internal/auth"
	"github.com/tukib/dtec-messenger-electron/internal/metrics"
	"github.com/tukib/dtec-messenger-electron/internal/store"
	"github.com/tukib/dtec-messenger-electron/internal/wire"
	"github.com/tukib/dtec-messenger-electron/internal/ws"
)

const defaultStoreTimeout = 5 * time.Second

// Engine authenticates and routes protocol commands. It is the ws.Handler
// for every connection.
type Engine struct {
	Store store.Store
	Hub   *ws.Hub
	Guard auth.ReplayGuard

	// Window bounds how old a request timestamp may be.
	Window time.Duration
	// StoreTimeout bounds each persistence call.
	StoreTimeout time.Duration
	Now          func() time.Time
	Log          *logrus.Entry

	validate *validator.Validate
}

var _ ws.Handler = (*Engine)(nil)

type Option func(*Engine)

func WithReplayGuard(g auth.ReplayGuard) Option {
	return func(e *Engine) {
		e.Guard = g
	}
}

func WithWindow(d time.Duration) Option {
	return func(e *Engine) {
		e.Window = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.Now = now
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) {
		e.Log = log
	}
}

func NewEngine(st store.Store, hub *ws.Hub, opts ...Option) *Engine {
	e := &Engine{
		Store:        st,
		Hub:          hub,
		Guard:        auth.NopGuard{},
		Window:       auth.DefaultWindow,
		StoreTimeout: defaultStoreTimeout,
		Now:          time.Now,
		Log:          logrus.WithField("component", "engine"),
		validate:     validator.New(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// request is one decoded command in flight.
type request struct {
	client   *ws.Client
	frame    wire.Frame
	verified bool
	log      *logrus.Entry
}

// HandleMessage runs the checks common to every command and dispatches it.
// Anything that fails authentication or parsing is dropped without a reply.
func (e *Engine) HandleMessage(c *ws.Client, message []byte) {
	log := e.Log.WithField("conn", c.ID)

	frame, err := wire.Decode(message)
	if err != nil {
		e.reject(log, "malformed", err)
		return
	}
	log = log.WithField("cmd", frame.Command)

	var stamp wire.Stamp
	if err := frame.Unmarshal(&stamp); err != nil {
		e.reject(log, "malformed", err)
		return
	}
	if err := auth.CheckFreshness(stamp.T, e.Now(), e.Window); err != nil {
		e.reject(log, "stale", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.StoreTimeout)
	defer cancel()

	req := &request{client: c, frame: frame, log: log}
	if frame.Signed {
		var claim struct {
			PublicKey string `json:"publicKey"`
		}
		if err := frame.Unmarshal(&claim); err != nil {
			e.reject(log, "malformed", err)
			return
		}
		if err := auth.VerifySignature(claim.PublicKey, frame.Payload, frame.Signature); err != nil {
			log.Debugf("unverified signature: %v", err)
		} else if err := e.Guard.Remember(ctx, frame.Command, frame.Signature); err != nil {
			e.reject(log, "replay", err)
			return
		} else {
			req.verified = true
		}
	}

	switch frame.Command {
	case wire.CmdRegister:
		e.register(ctx, req)
	case wire.CmdLogin:
		e.login(ctx, req)
	case wire.CmdWhois:
		e.whois(ctx, req)
	case wire.CmdMsg:
		e.msg(ctx, req)
	case wire.CmdGetHist:
		e.getHist(ctx, req)
	default:
		e.reject(log, "unknown_command", nil)
		return
	}
	metrics.Commands.WithLabelValues(frame.Command).Inc()
}

// decode unmarshals the command payload. A payload that is not the expected
// JSON object is malformed input and is dropped.
func (e *Engine) decode(req *request, v any) bool {
	if err := req.frame.Unmarshal(v); err != nil {
		e.reject(req.log, "malformed", err)
		return false
	}
	return true
}

// valid checks the payload's field constraints. Commands whose outcome the
// client waits for answer a failure with their ok:false reply; the others
// drop the request.
func (e *Engine) valid(req *request, v any) bool {
	if err := e.validate.Struct(v); err != nil {
		e.reject(req.log, "invalid", err)
		return false
	}
	return true
}

func (e *Engine) reply(req *request, cmd string, payload any) {
	line, err := wire.Encode(cmd, payload)
	if err != nil {
		req.log.Errorf("encode %s: %v", cmd, err)
		return
	}
	if !req.client.Send(line) {
		req.log.Debugf("reply %s dropped: connection gone", cmd)
	}
}

func (e *Engine) reject(log *logrus.Entry, reason string, err error) {
	metrics.Rejected.WithLabelValues(reason).Inc()
	if err != nil {
		log.WithField("reason", reason).Debug(err)
	} else {
		log.WithField("reason", reason).Debug("request dropped")
	}
}
