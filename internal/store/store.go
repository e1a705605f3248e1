package store

import (
	"context"
	"errors"

	"github.com/tukib/dtec-messenger-electron/internal/models"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrUsernameTaken = errors.New("store: username already taken")
)

// Store is the server's durable state: a user collection and a message
// collection. Implementations must be safe for concurrent use and must
// enforce username uniqueness themselves; CreateUser reports a conflicting
// insert as ErrUsernameTaken even if a prior lookup saw no such user.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByPublicKey(ctx context.Context, publicKey string) (*models.User, error)

	// Message operations
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessagesTo(ctx context.Context, username string) ([]models.Message, error)

	Close() error
}
