// Package mongostore keeps users and messages in MongoDB, using the document
// shapes users {_id, publicKeyString} and messages {_id, to, from, content, time}.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tukib/dtec-messenger-electron/internal/models"
	"github.com/tukib/dtec-messenger-electron/internal/store"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

type messageDoc struct {
	ID      primitive.ObjectID `bson:"_id"`
	To      string             `bson:"to"`
	From    string             `bson:"from"`
	Content string             `bson:"content"`
	Time    int64              `bson:"time"`
}

type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
}

var _ store.Store = (*MongoStore)(nil)

// New connects to uri, verifies the connection and ensures lookup indexes.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "publicKeyString", Value: 1}},
	}); err != nil {
		return fmt.Errorf("mongostore: users index: %w", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "to", Value: 1}, {Key: "time", Value: 1}},
	}); err != nil {
		return fmt.Errorf("mongostore: messages index: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrUsernameTaken
	}
	return err
}

func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": username})
}

func (s *MongoStore) GetUserByPublicKey(ctx context.Context, publicKey string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"publicKeyString": publicKey})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *MongoStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	id, err := primitive.ObjectIDFromHex(msg.ID)
	if err != nil {
		return fmt.Errorf("mongostore: message id: %w", err)
	}
	_, err = s.messages.InsertOne(ctx, messageDoc{
		ID:      id,
		To:      msg.To,
		From:    msg.From,
		Content: msg.Content,
		Time:    msg.Time,
	})
	return err
}

func (s *MongoStore) GetMessagesTo(ctx context.Context, username string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"to": username}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, models.Message{
			ID:      d.ID.Hex(),
			To:      d.To,
			From:    d.From,
			Content: d.Content,
			Time:    d.Time,
		})
	}
	return messages, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
