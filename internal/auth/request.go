// Package auth checks the authenticity of incoming protocol requests: the
// freshness of their timestamp, their signature, and that a signed request
// is not being replayed inside its freshness window.
package auth

import (
	"errors"
	"time"

	"github.com/tukib/dtec-messenger-electron/internal/keystore"
)

// DefaultWindow is how far in the past a request timestamp may lie.
const DefaultWindow = 5 * time.Second

var (
	ErrStale        = errors.New("auth: missing, stale or future timestamp")
	ErrBadSignature = errors.New("auth: signature verification failed")
	ErrReplay       = errors.New("auth: request replayed")
)

// CheckFreshness accepts t (epoch ms) only if it lies in [now-window, now].
func CheckFreshness(t *int64, now time.Time, window time.Duration) error {
	if t == nil {
		return ErrStale
	}
	nowMs := now.UnixMilli()
	if *t < nowMs-window.Milliseconds() || *t > nowMs {
		return ErrStale
	}
	return nil
}

// VerifySignature checks signature over payload against the public key the
// payload itself asserts. A valid signature proves possession of the private
// key only; binding it to an identity is the caller's job.
func VerifySignature(publicKey string, payload []byte, signature string) error {
	if publicKey == "" || signature == "" {
		return ErrBadSignature
	}
	if !keystore.Verify(publicKey, payload, signature) {
		return ErrBadSignature
	}
	return nil
}
