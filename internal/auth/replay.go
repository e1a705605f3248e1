package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

// ReplayGuard remembers signed requests it has seen for the length of the
// freshness window. Remember returns ErrReplay for a command and signature
// pair already seen.
//
// PKCS#1 v1.5 signatures are deterministic and the signed payload carries a
// millisecond timestamp, so a retry must be re-stamped and re-signed. A
// byte-identical resend inside the window is treated as a replay.
type ReplayGuard interface {
	Remember(ctx context.Context, command, signature string) error
}

// fingerprint binds the signature to its command, which the signature itself
// does not cover.
func fingerprint(command, signature string) string {
	h := sha256.New()
	h.Write([]byte(command))
	h.Write([]byte{0})
	h.Write([]byte(signature))
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryGuard keeps seen signatures in process memory.
type MemoryGuard struct {
	seen *cache.Cache
}

func NewMemoryGuard(window time.Duration) *MemoryGuard {
	return &MemoryGuard{seen: cache.New(window, 2*window)}
}

func (g *MemoryGuard) Remember(_ context.Context, command, signature string) error {
	// Add fails if the key is present and unexpired, which is the atomic
	// check-and-set we need.
	if err := g.seen.Add(fingerprint(command, signature), struct{}{}, cache.DefaultExpiration); err != nil {
		return ErrReplay
	}
	return nil
}

// RedisGuard shares seen signatures between server instances.
type RedisGuard struct {
	cli     *redis.Client
	ttl     time.Duration
	keyPref string
}

func NewRedisGuard(addr string, window time.Duration) *RedisGuard {
	return &RedisGuard{
		cli:     redis.NewClient(&redis.Options{Addr: addr}),
		ttl:     window,
		keyPref: "sigseen:",
	}
}

func (g *RedisGuard) Remember(ctx context.Context, command, signature string) error {
	ok, err := g.cli.SetNX(ctx, g.keyPref+fingerprint(command, signature), "1", g.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrReplay
	}
	return nil
}

func (g *RedisGuard) Close() error {
	return g.cli.Close()
}

// NopGuard accepts every signature.
type NopGuard struct{}

func (NopGuard) Remember(context.Context, string, string) error { return nil }
