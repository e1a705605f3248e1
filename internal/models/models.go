package models

// User is a registered identity. The username is the primary key and the
// public key never changes once stored.
type User struct {
	Username  string `json:"_id" bson:"_id"`
	PublicKey string `json:"publicKeyString" bson:"publicKeyString"`
}

// Message is a stored ciphertext message. Time is epoch milliseconds.
type Message struct {
	ID      string `json:"_id"`
	To      string `json:"to"`
	From    string `json:"from"`
	Content string `json:"content"`
	Time    int64  `json:"time"`
}

// OutgoingMessage is the sender's own plaintext copy of a message it sent.
// The server only ever holds ciphertext for the recipient's key, so this is
// the only place sent history can be recovered from.
type OutgoingMessage struct {
	ID      string `json:"_id"`
	To      string `json:"to"`
	From    string `json:"from"`
	Time    int64  `json:"time"`
	Content string `json:"content"`
}
