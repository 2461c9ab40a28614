package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/model"
)

var ErrInvalidID = errors.New("invalid object id")

// AccountRepository defines the interface for account-related database operations.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *model.Account) (*model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByResetToken(ctx context.Context, tokenHash string) (*model.Account, error)

	// SetResetToken stores a reset token digest and its expiry in a single write.
	SetResetToken(ctx context.Context, id string, params SetResetTokenParams) (*model.Account, error)

	// ConsumeResetToken replaces the password hash and clears the reset token, but only if the
	// account still holds the given digest and it has not expired at params.Now. It returns
	// mongo.ErrNoDocuments when the condition does not hold.
	ConsumeResetToken(ctx context.Context, id string, params ConsumeResetTokenParams) (*model.Account, error)

	// ClearExpiredResetTokens unsets reset tokens that expired at or before cutoff.
	ClearExpiredResetTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// SetResetTokenParams defines the parameters for issuing a reset token.
type SetResetTokenParams struct {
	TokenHash string
	ExpiresAt time.Time
}

// ConsumeResetTokenParams defines the parameters for the compare-and-clear reset write.
type ConsumeResetTokenParams struct {
	TokenHash    string
	PasswordHash string
	Now          time.Time
}

const accountCollection = "accounts"

type accountMongoRepository struct {
	db *mongo.Database
}

func NewAccountMongoRepository(ctx context.Context, logger *zerolog.Logger, db *mongo.Database) AccountRepository {
	collection := db.Collection(accountCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "reset_token_hash", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create account indexes")
	}

	return &accountMongoRepository{db: db}
}

func (r *accountMongoRepository) CreateAccount(ctx context.Context, account *model.Account) (*model.Account, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	account.Version = 1
	if account.Cart.Items == nil {
		account.Cart.Items = []model.CartItem{}
	}

	result, err := r.db.Collection(accountCollection).InsertOne(ctx, account)
	if err != nil {
		return nil, err
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		account.ID = objectID
	} else {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}

	return account, nil
}

func (r *accountMongoRepository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	return r.findOne(ctx, bson.M{"_id": objectID})
}

func (r *accountMongoRepository) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *accountMongoRepository) GetAccountByResetToken(ctx context.Context, tokenHash string) (*model.Account, error) {
	if tokenHash == "" {
		return nil, mongo.ErrNoDocuments
	}

	return r.findOne(ctx, bson.M{"reset_token_hash": tokenHash})
}

func (r *accountMongoRepository) SetResetToken(
	ctx context.Context,
	id string,
	params SetResetTokenParams,
) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	update := bson.M{
		"$set": bson.M{
			"reset_token_hash":       params.TokenHash,
			"reset_token_expires_at": params.ExpiresAt,
			"updated_at":             time.Now(),
		},
	}

	return r.findOneAndUpdate(ctx, bson.M{"_id": objectID}, update)
}

func (r *accountMongoRepository) ConsumeResetToken(
	ctx context.Context,
	id string,
	params ConsumeResetTokenParams,
) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	filter := bson.M{
		"_id":                    objectID,
		"reset_token_hash":       params.TokenHash,
		"reset_token_expires_at": bson.M{"$gt": params.Now},
	}
	update := bson.M{
		"$set": bson.M{
			"password_hash": params.PasswordHash,
			"updated_at":    time.Now(),
		},
		"$unset": bson.M{
			"reset_token_hash":       "",
			"reset_token_expires_at": "",
		},
		"$inc": bson.M{"version": 1},
	}

	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *accountMongoRepository) ClearExpiredResetTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"reset_token_expires_at": bson.M{"$lte": cutoff},
	}
	update := bson.M{
		"$unset": bson.M{
			"reset_token_hash":       "",
			"reset_token_expires_at": "",
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := r.db.Collection(accountCollection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

func (r *accountMongoRepository) findOne(ctx context.Context, filter bson.M) (*model.Account, error) {
	var account model.Account
	if err := r.db.Collection(accountCollection).FindOne(ctx, filter).Decode(&account); err != nil {
		return nil, err
	}

	return &account, nil
}

func (r *accountMongoRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*model.Account, error) {
	result := r.db.Collection(accountCollection).FindOneAndUpdate(
		ctx,
		filter,
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if result.Err() != nil {
		return nil, result.Err()
	}

	var account model.Account
	if err := result.Decode(&account); err != nil {
		return nil, err
	}

	return &account, nil
}
