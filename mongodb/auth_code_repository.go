package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.pilab.hu/authd/oauth"
)

// AuthCodeRepository implements oauth.CodeRepository.
type AuthCodeRepository struct {
	coll *mongo.Collection
}

// NewAuthCodeRepository creates a new AuthCodeRepository instance.
func NewAuthCodeRepository(db *mongo.Database) *AuthCodeRepository {
	return &AuthCodeRepository{coll: db.Collection(CodesCollection)}
}

func (r *AuthCodeRepository) Insert(ctx context.Context, code *oauth.AuthCode) error {
	if _, err := r.coll.InsertOne(ctx, code); err != nil {
		return translateError(err, "AuthCode", oauth.ErrAuthCodeNotFound)
	}
	log.Debug().Str("client_id", code.ClientID).Str("user_id", code.UserID).Msg("authorization code saved")
	return nil
}

// Consume removes and returns the code in one round trip.
func (r *AuthCodeRepository) Consume(ctx context.Context, value string) (*oauth.AuthCode, error) {
	var code oauth.AuthCode
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"value": value}).Decode(&code); err != nil {
		return nil, translateError(err, "AuthCode", oauth.ErrAuthCodeNotFound)
	}
	return &code, nil
}

func (r *AuthCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expire_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, translateError(err, "AuthCode", oauth.ErrAuthCodeNotFound)
	}
	return res.DeletedCount, nil
}
