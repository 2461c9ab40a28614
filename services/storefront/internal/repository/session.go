package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/model"
)

// SessionRepository defines the interface for session-related database operations.
type SessionRepository interface {
	// GetSession returns an unexpired session or mongo.ErrNoDocuments.
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// SaveSession inserts or replaces the session.
	SaveSession(ctx context.Context, session *model.Session) error

	// DeleteSession removes the session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id string) error
}

const sessionCollection = "sessions"

type sessionMongoRepository struct {
	db *mongo.Database
}

func NewSessionMongoRepository(ctx context.Context, logger *zerolog.Logger, db *mongo.Database) SessionRepository {
	collection := db.Collection(sessionCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create session indexes")
	}

	return &sessionMongoRepository{db: db}
}

func (r *sessionMongoRepository) GetSession(ctx context.Context, id string) (*model.Session, error) {
	// The TTL monitor runs periodically, so expired documents may still be present.
	filter := bson.M{
		"_id":        id,
		"expires_at": bson.M{"$gt": time.Now()},
	}

	var session model.Session
	if err := r.db.Collection(sessionCollection).FindOne(ctx, filter).Decode(&session); err != nil {
		return nil, err
	}

	session = session.MarkPersisted()
	return &session, nil
}

func (r *sessionMongoRepository) SaveSession(ctx context.Context, session *model.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err := r.db.Collection(sessionCollection).ReplaceOne(
		ctx,
		bson.M{"_id": session.ID},
		session,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return err
	}

	*session = session.MarkPersisted()
	return nil
}

func (r *sessionMongoRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.Collection(sessionCollection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}
