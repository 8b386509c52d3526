package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.pilab.hu/authd/internal/auth"
)

// UserRepository implements auth.UserStore.
type UserRepository struct {
	coll *mongo.Collection
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(UsersCollection)}
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	var u auth.User
	if err := r.coll.FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		return nil, translateError(err, "User", auth.ErrUserNotFound)
	}
	return &u, nil
}

func (r *UserRepository) Insert(ctx context.Context, u *auth.User) error {
	_, err := r.coll.InsertOne(ctx, u)
	return translateError(err, "User", auth.ErrUserNotFound)
}
