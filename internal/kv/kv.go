// Package kv is the client's local key/value state: key material and the
// sender's plaintext copy of outgoing messages.
package kv

import "errors"

// Keys used by the messenger client.
const (
	KeyGenerated        = "key.generated"
	KeyPublicKey        = "key.publicKey"
	KeyPrivateKey       = "key.privateKey"
	KeyOutgoingMessages = "outgoingMessages"
)

var ErrClosed = errors.New("kv: store closed")

// Store is a flat string key/value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(keys ...string) error
	Close() error
}
