package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tukib/dtec-messenger-electron/internal/keystore"
)

func ms(v int64) *int64 { return &v }

func TestCheckFreshness(t *testing.T) {
	now := time.UnixMilli(1_700_000_010_000)
	nowMs := now.UnixMilli()

	tests := []struct {
		name string
		t    *int64
		ok   bool
	}{
		{"missing", nil, false},
		{"zero", ms(0), false},
		{"now", ms(nowMs), true},
		{"inside window", ms(nowMs - 4999), true},
		{"window edge", ms(nowMs - 5000), true},
		{"stale", ms(nowMs - 5001), false},
		{"future", ms(nowMs + 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFreshness(tt.t, now, DefaultWindow)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrStale)
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	kp, key, err := keystore.New(keystore.WithKeyBits(1024), keystore.WithScryptCost(1<<10)).GenerateKeyPair("pw")
	require.NoError(t, err)

	payload := []byte(`{"publicKey":"x","t":1}`)
	sig, err := key.Sign(payload)
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(kp.PublicKey, payload, sig))
	assert.ErrorIs(t, VerifySignature(kp.PublicKey, []byte(`{"publicKey":"x","t":2}`), sig), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature("", payload, sig), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(kp.PublicKey, payload, ""), ErrBadSignature)
}

func TestMemoryGuard(t *testing.T) {
	g := NewMemoryGuard(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, g.Remember(ctx, "login", "sig-a"))
	assert.ErrorIs(t, g.Remember(ctx, "login", "sig-a"), ErrReplay)
	assert.NoError(t, g.Remember(ctx, "login", "sig-b"))
	assert.NoError(t, g.Remember(ctx, "register", "sig-a"), "same signature under another command")

	time.Sleep(80 * time.Millisecond)
	assert.NoError(t, g.Remember(ctx, "login", "sig-a"), "entries expire with the window")
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, fingerprint("login", "abc"), fingerprint("login", "abc"))
	assert.NotEqual(t, fingerprint("login", "abc"), fingerprint("register", "abc"))
	assert.NotEqual(t, fingerprint("log", "inabc"), fingerprint("login", "abc"))
}

func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	g := NewRedisGuard(addr, time.Second)
	defer g.Close()
	ctx := context.Background()

	sig := "sig-" + time.Now().String()
	require.NoError(t, g.Remember(ctx, "login", sig))
	assert.ErrorIs(t, g.Remember(ctx, "login", sig), ErrReplay)
	assert.NoError(t, g.Remember(ctx, "register", sig))
}
