package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tukib/dtec-messenger-electron/internal/models"
	"github.com/tukib/dtec-messenger-electron/internal/store"
)

// Requires a reachable server, e.g. MONGODB_URI=mongodb://localhost:27017.
func newTestStore(t *testing.T) *MongoStore {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "messenger_test_" + primitive.NewObjectID().Hex()
	s, err := New(ctx, uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.client.Database(dbName).Drop(context.Background())
		s.Close()
	})
	return s
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &models.User{Username: "alice", PublicKey: "pk-a"}))
	err := s.CreateUser(ctx, &models.User{Username: "alice", PublicKey: "pk-other"})
	assert.ErrorIs(t, err, store.ErrUsernameTaken)

	u, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pk-a", u.PublicKey)

	u, err = s.GetUserByPublicKey(ctx, "pk-a")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := models.Message{ID: primitive.NewObjectID().Hex(), To: "bob", From: "alice", Content: "YQ==", Time: 20}
	second := models.Message{ID: primitive.NewObjectID().Hex(), To: "bob", From: "carol", Content: "Yg==", Time: 10}
	require.NoError(t, s.SaveMessage(ctx, &first))
	require.NoError(t, s.SaveMessage(ctx, &second))

	got, err := s.GetMessagesTo(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []models.Message{second, first}, got)

	assert.Error(t, s.SaveMessage(ctx, &models.Message{ID: "nothex", To: "bob"}))
}
