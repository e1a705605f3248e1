package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	_, ok, err := s.Get(KeyPublicKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyPublicKey, "pem"))
	require.NoError(t, s.Set(KeyGenerated, "true"))

	v, ok, err := s.Get(KeyPublicKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pem", v)

	require.NoError(t, s.Set(KeyPublicKey, "pem2"))
	v, _, _ = s.Get(KeyPublicKey)
	assert.Equal(t, "pem2", v)

	require.NoError(t, s.Delete(KeyPublicKey, KeyGenerated, "missing"))
	_, ok, err = s.Get(KeyGenerated)
	require.NoError(t, err)
	assert.False(t, ok)

	// Empty values are distinct from missing ones.
	require.NoError(t, s.Set(KeyOutgoingMessages, ""))
	v, ok, _ = s.Get(KeyOutgoingMessages)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	exerciseStore(t, s)

	require.NoError(t, s.Close())
	_, _, err := s.Get(KeyPublicKey)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBoltStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())
}

func TestBoltStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyPrivateKey, "sealed"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(KeyPrivateKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sealed", v)
}
