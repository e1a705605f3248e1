package client

import (
	"errors"
	"fmt"
)

var (
	ErrWrongPassword     = errors.New("client: wrong password")
	ErrUsernameTaken     = errors.New("client: username taken")
	ErrRecipientNotFound = errors.New("client: recipient not found")
	ErrSendRejected      = errors.New("client: send rejected by server")
	ErrNotAuthenticated  = errors.New("client: not authenticated")
	ErrNotConnected      = errors.New("client: not connected")
	ErrNoKey             = errors.New("client: no local key pair")
)

type State int

const (
	Disconnected State = iota
	Connected
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	// EventRegisterFailed carries the rejected username and ErrUsernameTaken.
	EventRegisterFailed
	EventLoggedIn
	// EventPending is emitted as soon as a message is submitted.
	EventPending
	// EventSent follows EventPending once the server stored the message.
	EventSent
	// EventFailed is the terminal failure of a submitted message.
	EventFailed
	EventHistory
	EventMessage
)

var eventNames = map[EventType]string{
	EventConnected:      "connected",
	EventDisconnected:   "disconnected",
	EventRegisterFailed: "register_failed",
	EventLoggedIn:       "logged_in",
	EventPending:        "pending",
	EventSent:           "sent",
	EventFailed:         "failed",
	EventHistory:        "history",
	EventMessage:        "message",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Entry is one line of a conversation timeline. Outgoing entries are the
// sender's own plaintext; the others were decrypted from server ciphertext,
// and Err is set when that failed.
type Entry struct {
	ID       string
	To       string
	From     string
	Time     int64
	Content  string
	Outgoing bool
	Err      error
}

type Event struct {
	Type EventType
	// ID is the message id for pending, sent and failed events.
	ID       string
	Username string
	Entry    *Entry
	History  []Entry
	Err      error
}
