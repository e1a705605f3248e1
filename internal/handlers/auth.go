package handlers

import (
	"context"
	"errors"

	"github.com/tukib/dtec-messenger-electron/internal/models"
	"github.com/tukib/dtec-messenger-electron/internal/store"
	"github.com/tukib/dtec-messenger-electron/internal/wire"
)

func (e *Engine) register(ctx context.Context, req *request) {
	var body wire.RegisterRequest
	if !e.decode(req, &body) {
		return
	}
	if !req.verified {
		e.reject(req.log, "unauthenticated", nil)
		return
	}

	taken := wire.RegisterResponse{OK: false, Username: body.Username}
	if !e.valid(req, &body) {
		e.reply(req, wire.CmdRegisterRes, taken)
		return
	}

	_, err := e.Store.GetUserByUsername(ctx, body.Username)
	switch {
	case err == nil:
		e.reply(req, wire.CmdRegisterRes, taken)
		return
	case !errors.Is(err, store.ErrNotFound):
		req.log.Errorf("lookup %q: %v", body.Username, err)
		e.reply(req, wire.CmdRegisterRes, taken)
		return
	}

	// The pre-check above can race with a concurrent register; the store's
	// uniqueness constraint decides.
	err = e.Store.CreateUser(ctx, &models.User{Username: body.Username, PublicKey: body.PublicKey})
	if err != nil {
		if !errors.Is(err, store.ErrUsernameTaken) {
			req.log.Errorf("create user %q: %v", body.Username, err)
		}
		e.reply(req, wire.CmdRegisterRes, taken)
		return
	}

	req.log.WithField("user", body.Username).Info("registered")
	e.reply(req, wire.CmdRegisterRes, wire.RegisterResponse{OK: true})
}

// login binds the session to the identity owning the asserted public key.
// The signature only proves possession of the key; the lookup is what ties
// it to an account. Unknown keys get no reply at all.
func (e *Engine) login(ctx context.Context, req *request) {
	var body wire.LoginRequest
	if !e.decode(req, &body) || !e.valid(req, &body) {
		return
	}
	if !req.verified {
		e.reject(req.log, "unauthenticated", nil)
		return
	}

	user, err := e.Store.GetUserByPublicKey(ctx, body.PublicKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			req.log.Errorf("lookup by key: %v", err)
		}
		e.reject(req.log, "unknown_key", nil)
		return
	}
	if !e.Hub.Bind(req.client, user.Username) {
		req.log.Debug("connection closed before login completed")
		return
	}
	e.reply(req, wire.CmdLoginRes, wire.LoginResponse{Username: user.Username})
}

func (e *Engine) whois(ctx context.Context, req *request) {
	var body wire.WhoisRequest
	if !e.decode(req, &body) {
		return
	}
	notFound := wire.WhoisResponse{OK: false, ForMessage: body.ForMessage}
	if !e.valid(req, &body) {
		e.reply(req, wire.CmdWhoisRes, notFound)
		return
	}

	user, err := e.Store.GetUserByUsername(ctx, body.User)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			req.log.Errorf("whois %q: %v", body.User, err)
		}
		e.reply(req, wire.CmdWhoisRes, notFound)
		return
	}
	e.reply(req, wire.CmdWhoisRes, wire.WhoisResponse{
		OK:         true,
		PublicKey:  user.PublicKey,
		ForMessage: body.ForMessage,
	})
}
