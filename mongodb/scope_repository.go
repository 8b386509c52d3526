package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/authd/scope"
)

// ScopeRepository implements scope.Repository.
type ScopeRepository struct {
	coll *mongo.Collection
}

// NewScopeRepository creates a new ScopeRepository instance.
func NewScopeRepository(db *mongo.Database) *ScopeRepository {
	return &ScopeRepository{coll: db.Collection(ScopesCollection)}
}

func (r *ScopeRepository) findOne(ctx context.Context, filter bson.M) (*scope.Scope, error) {
	var s scope.Scope
	if err := r.coll.FindOne(ctx, filter).Decode(&s); err != nil {
		return nil, translateError(err, "Scope", scope.ErrScopeNotFound)
	}
	return &s, nil
}

func (r *ScopeRepository) FindByAudienceAndValue(ctx context.Context, audienceID, value string) (*scope.Scope, error) {
	return r.findOne(ctx, bson.M{"audience_id": audienceID, "value": value})
}

func (r *ScopeRepository) FindByID(ctx context.Context, id string) (*scope.Scope, error) {
	return r.findOne(ctx, bson.M{"scope_id": id})
}

func (r *ScopeRepository) FindByAudience(ctx context.Context, audienceID string) ([]*scope.Scope, error) {
	opts := options.Find().SetSort(bson.D{{Key: "value", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"audience_id": audienceID}, opts)
	if err != nil {
		return nil, translateError(err, "Scope", scope.ErrScopeNotFound)
	}
	defer cursor.Close(ctx)

	scopes := []*scope.Scope{}
	if err := cursor.All(ctx, &scopes); err != nil {
		return nil, translateError(err, "Scope", scope.ErrScopeNotFound)
	}
	return scopes, nil
}

func (r *ScopeRepository) Insert(ctx context.Context, s *scope.Scope) error {
	_, err := r.coll.InsertOne(ctx, s)
	return translateError(err, "Scope", scope.ErrScopeNotFound)
}

func (r *ScopeRepository) Update(ctx context.Context, s *scope.Scope) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"scope_id": s.ID}, s)
	if err != nil {
		return translateError(err, "Scope", scope.ErrScopeNotFound)
	}
	if res.MatchedCount == 0 {
		return scope.ErrScopeNotFound
	}
	return nil
}

func (r *ScopeRepository) Delete(ctx context.Context, audienceID, value string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"audience_id": audienceID, "value": value})
	if err != nil {
		return false, translateError(err, "Scope", scope.ErrScopeNotFound)
	}
	return res.DeletedCount > 0, nil
}
