package mongodb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func unique(keys ...string) mongo.IndexModel {
	d := bson.D{}
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return mongo.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
}

func plain(keys ...string) mongo.IndexModel {
	d := bson.D{}
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return mongo.IndexModel{Keys: d}
}

// expiring lets the server drop documents once expire_at has passed. The
// janitor still sweeps, the TTL monitor only runs once a minute.
func expiring() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "expire_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
}

// EnsureIndexes creates the indexes every repository relies on. Unique
// indexes back the conflict errors of the stores.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		ClientsCollection: {
			unique("client_id"),
			unique("client_secret"),
			unique("audience_id"),
		},
		ScopesCollection: {
			unique("scope_id"),
			unique("audience_id", "value"),
		},
		TokensCollection: {
			unique("token_id"),
			unique("value"),
			plain("client_id", "audience", "user_id"),
			expiring(),
		},
		RefreshTokensCollection: {
			unique("value"),
			unique("access_token_id"),
			expiring(),
		},
		CodesCollection: {
			unique("value"),
			expiring(),
		},
		UsersCollection: {
			unique("username"),
			unique("user_id"),
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes for %s: %w", coll, err)
		}
		log.Debug().Str("collection", coll).Msg("indexes ensured")
	}

	return nil
}
