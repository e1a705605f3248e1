package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.PingPeriod)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Auth.FreshnessWindow)
	assert.Equal(t, "memory", cfg.Auth.ReplayGuard)
}

func TestLoadServerEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_DRIVER=mongo\nSTORE_DSN=mongodb://db:27017\nREPLAY_GUARD=redis\n"), 0600))
	t.Cleanup(func() {
		os.Unsetenv("STORE_DRIVER")
		os.Unsetenv("STORE_DSN")
		os.Unsetenv("REPLAY_GUARD")
	})

	t.Setenv("SERVER_ADDR", ":9999")
	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.DSN)
	assert.Equal(t, "redis", cfg.Auth.ReplayGuard)
	assert.Equal(t, ":9999", cfg.Addr)
}

func TestLoadServerRejectsUnknownValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "oracle")
	_, err := LoadServer("")
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("REPLAY_GUARD", "sometimes")
	_, err = LoadServer("")
	assert.Error(t, err)
}

func TestLoadServerMissingFile(t *testing.T) {
	_, err := LoadServer(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("MESSENGER_WATCHDOG", "2s")
	cfg, err := LoadClient("")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.ServerURL)
	assert.Equal(t, 4096, cfg.KeyBits)
	assert.Equal(t, 2*time.Second, cfg.Watchdog)

	t.Setenv("MESSENGER_KEY_BITS", "512")
	_, err = LoadClient("")
	assert.Error(t, err)
}
