package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.pilab.hu/authd/token"
)

// TokenRepository implements token.Repository.
type TokenRepository struct {
	coll *mongo.Collection
}

// NewTokenRepository creates a new TokenRepository instance.
func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{coll: db.Collection(TokensCollection)}
}

func (r *TokenRepository) findOne(ctx context.Context, filter bson.M) (*token.AccessToken, error) {
	var t token.AccessToken
	if err := r.coll.FindOne(ctx, filter).Decode(&t); err != nil {
		return nil, translateError(err, "AccessToken", token.ErrTokenNotFound)
	}
	return &t, nil
}

func (r *TokenRepository) FindByClientAudience(ctx context.Context, clientID, audience string) ([]*token.AccessToken, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"client_id": clientID, "audience": audience, "user_id": ""})
	if err != nil {
		return nil, translateError(err, "AccessToken", token.ErrTokenNotFound)
	}
	defer cursor.Close(ctx)

	tokens := []*token.AccessToken{}
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, translateError(err, "AccessToken", token.ErrTokenNotFound)
	}
	return tokens, nil
}

func (r *TokenRepository) FindByValue(ctx context.Context, value string) (*token.AccessToken, error) {
	return r.findOne(ctx, bson.M{"value": value})
}

func (r *TokenRepository) FindByID(ctx context.Context, id string) (*token.AccessToken, error) {
	return r.findOne(ctx, bson.M{"token_id": id})
}

func (r *TokenRepository) Insert(ctx context.Context, t *token.AccessToken) error {
	_, err := r.coll.InsertOne(ctx, t)
	return translateError(err, "AccessToken", token.ErrTokenNotFound)
}

func (r *TokenRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"token_id": id})
	if err != nil {
		return translateError(err, "AccessToken", token.ErrTokenNotFound)
	}
	if res.DeletedCount == 0 {
		return token.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expire_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, translateError(err, "AccessToken", token.ErrTokenNotFound)
	}
	return res.DeletedCount, nil
}
