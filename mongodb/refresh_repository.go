package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.pilab.hu/authd/refresh"
)

// RefreshTokenRepository implements refresh.Repository.
type RefreshTokenRepository struct {
	coll *mongo.Collection
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository instance.
func NewRefreshTokenRepository(db *mongo.Database) *RefreshTokenRepository {
	return &RefreshTokenRepository{coll: db.Collection(RefreshTokensCollection)}
}

func (r *RefreshTokenRepository) FindByValue(ctx context.Context, value string) (*refresh.RefreshToken, error) {
	var rt refresh.RefreshToken
	if err := r.coll.FindOne(ctx, bson.M{"value": value}).Decode(&rt); err != nil {
		return nil, translateError(err, "RefreshToken", refresh.ErrRefreshTokenNotFound)
	}
	return &rt, nil
}

func (r *RefreshTokenRepository) Insert(ctx context.Context, rt *refresh.RefreshToken) error {
	_, err := r.coll.InsertOne(ctx, rt)
	return translateError(err, "RefreshToken", refresh.ErrRefreshTokenNotFound)
}

// Delete reports whether this call removed the document. DeleteOne is atomic
// per document, so concurrent exchanges see exactly one true.
func (r *RefreshTokenRepository) Delete(ctx context.Context, value string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"value": value})
	if err != nil {
		return false, translateError(err, "RefreshToken", refresh.ErrRefreshTokenNotFound)
	}
	return res.DeletedCount == 1, nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expire_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, translateError(err, "RefreshToken", refresh.ErrRefreshTokenNotFound)
	}
	return res.DeletedCount, nil
}
