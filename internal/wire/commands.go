package wire

import "github.com/tukib/dtec-messenger-electron/internal/models"

// Client to server.
const (
	CmdRegister = "register"
	CmdLogin    = "login"
	CmdWhois    = "whois"
	CmdMsg      = "msg"
	CmdGetHist  = "get_hist"
)

// Server to client.
const (
	CmdRegisterRes = "register_res"
	CmdLoginRes    = "login_res"
	CmdWhoisRes    = "whois_res"
	CmdMsgRes      = "msg_res"
	CmdHist        = "hist"
	CmdNewMsg      = "new_msg"
)

// Stamp carries the request timestamp, epoch milliseconds, that every
// client command must include.
type Stamp struct {
	T *int64 `json:"t,omitempty"`
}

// At returns a Stamp for ms.
func At(ms int64) Stamp {
	return Stamp{T: &ms}
}

type RegisterRequest struct {
	Username  string `json:"username" validate:"required,max=64"`
	PublicKey string `json:"publicKey" validate:"required"`
	Stamp
}

type LoginRequest struct {
	PublicKey string `json:"publicKey" validate:"required"`
	Stamp
}

type WhoisRequest struct {
	User       string `json:"user" validate:"max=64"`
	ForMessage string `json:"forMessage"`
	Stamp
}

type MsgRequest struct {
	Content string `json:"content" validate:"required,base64"`
	To      string `json:"to" validate:"required"`
	As      string `json:"as" validate:"required"`
	ID      string `json:"id" validate:"len=24,hexadecimal"`
	Stamp
}

type GetHistRequest struct {
	As string `json:"as" validate:"required"`
	Stamp
}

type RegisterResponse struct {
	OK       bool   `json:"ok"`
	Username string `json:"username,omitempty"`
}

type LoginResponse struct {
	Username string `json:"username"`
}

type WhoisResponse struct {
	OK         bool   `json:"ok"`
	PublicKey  string `json:"publicKeyString,omitempty"`
	ForMessage string `json:"forMessage"`
}

type MsgResponse struct {
	OK          bool   `json:"ok"`
	ID          string `json:"id"`
	ReceiptTime int64  `json:"r_t,omitempty"`
}

type HistResponse struct {
	Messages []models.Message `json:"messages"`
}

type NewMsgEvent struct {
	Message models.Message `json:"message"`
}
