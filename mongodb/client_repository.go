package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.pilab.hu/authd/client"
)

// ClientRepository implements client.Store.
type ClientRepository struct {
	coll *mongo.Collection
}

// NewClientRepository creates a new ClientRepository instance.
func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{coll: db.Collection(ClientsCollection)}
}

func (r *ClientRepository) findOne(ctx context.Context, filter bson.M) (*client.Client, error) {
	var c client.Client
	if err := r.coll.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, translateError(err, "Client", client.ErrClientNotFound)
	}
	return &c, nil
}

func (r *ClientRepository) FindByID(ctx context.Context, id string) (*client.Client, error) {
	return r.findOne(ctx, bson.M{"client_id": id})
}

func (r *ClientRepository) FindByAudience(ctx context.Context, audienceID string) (*client.Client, error) {
	return r.findOne(ctx, bson.M{"audience_id": audienceID})
}

func (r *ClientRepository) Insert(ctx context.Context, c *client.Client) error {
	_, err := r.coll.InsertOne(ctx, c)
	return translateError(err, "Client", client.ErrClientNotFound)
}

func (r *ClientRepository) Update(ctx context.Context, c *client.Client) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"client_id": c.ID}, c)
	if err != nil {
		return translateError(err, "Client", client.ErrClientNotFound)
	}
	if res.MatchedCount == 0 {
		return client.ErrClientNotFound
	}
	return nil
}
