package handlers

import (
	"context"

	"github.com/tukib/dtec-messenger-electron/internal/metrics"
	"github.com/tukib/dtec-messenger-electron/internal/models"
	"github.com/tukib/dtec-messenger-electron/internal/wire"
)

// authorized reports whether the command's "as" field names the user bound to
// this connection.
func (e *Engine) authorized(req *request, as string) bool {
	bound := req.client.Username()
	if bound == "" || as != bound {
		e.reject(req.log, "unauthorized", nil)
		return false
	}
	return true
}

func (e *Engine) msg(ctx context.Context, req *request) {
	var body wire.MsgRequest
	if !e.decode(req, &body) || !e.valid(req, &body) {
		return
	}
	if !e.authorized(req, body.As) {
		return
	}

	message := models.Message{
		ID:      body.ID,
		To:      body.To,
		From:    body.As,
		Content: body.Content,
		Time:    *body.T,
	}
	if err := e.Store.SaveMessage(ctx, &message); err != nil {
		req.log.Errorf("save message %s: %v", body.ID, err)
		e.reply(req, wire.CmdMsgRes, wire.MsgResponse{OK: false, ID: body.ID})
		return
	}

	// Stored; live delivery is best effort and the recipient can always
	// fetch it with get_hist.
	e.deliver(req, message)
	e.reply(req, wire.CmdMsgRes, wire.MsgResponse{OK: true, ID: body.ID, ReceiptTime: message.Time})
}

func (e *Engine) deliver(req *request, message models.Message) {
	line, err := wire.Encode(wire.CmdNewMsg, wire.NewMsgEvent{Message: message})
	if err != nil {
		req.log.Errorf("encode new_msg: %v", err)
		return
	}
	if e.Hub.Deliver(message.To, line) {
		metrics.Deliveries.WithLabelValues("live").Inc()
	} else {
		metrics.Deliveries.WithLabelValues("offline").Inc()
	}
}

func (e *Engine) getHist(ctx context.Context, req *request) {
	var body wire.GetHistRequest
	if !e.decode(req, &body) || !e.valid(req, &body) {
		return
	}
	if !e.authorized(req, body.As) {
		return
	}

	messages, err := e.Store.GetMessagesTo(ctx, body.As)
	if err != nil {
		req.log.Errorf("history for %q: %v", body.As, err)
		messages = []models.Message{}
	}
	e.reply(req, wire.CmdHist, wire.HistResponse{Messages: messages})
}
