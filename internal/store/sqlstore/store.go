package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/tukib/dtec-messenger-electron/internal/models"
	"github.com/tukib/dtec-messenger-electron/internal/store"
)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

var _ store.Store = (*SQLStore)(nil)

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		public_key TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS users_public_key ON users (public_key);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		recipient TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		sent_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS messages_recipient ON messages (recipient, sent_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

// isUniqueViolation recognises primary key / unique constraint failures from
// either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	query := s.rebind("INSERT INTO users (username, public_key) VALUES (?, ?)")
	_, err := s.db.ExecContext(ctx, query, user.Username, user.PublicKey)
	if isUniqueViolation(err) {
		return store.ErrUsernameTaken
	}
	return err
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := s.rebind("SELECT username, public_key FROM users WHERE username = ?")
	return s.getUser(ctx, query, username)
}

func (s *SQLStore) GetUserByPublicKey(ctx context.Context, publicKey string) (*models.User, error) {
	query := s.rebind("SELECT username, public_key FROM users WHERE public_key = ? LIMIT 1")
	return s.getUser(ctx, query, publicKey)
}

func (s *SQLStore) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.Username, &user.PublicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	query := s.rebind("INSERT INTO messages (id, recipient, sender, content, sent_at) VALUES (?, ?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, msg.ID, msg.To, msg.From, msg.Content, msg.Time)
	return err
}

func (s *SQLStore) GetMessagesTo(ctx context.Context, username string) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, recipient, sender, content, sent_at
		FROM messages
		WHERE recipient = ?
		ORDER BY sent_at ASC, id ASC
	`)
	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.To, &m.From, &m.Content, &m.Time); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
