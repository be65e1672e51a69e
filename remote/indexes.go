package remote

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EnsureIndexes creates the geohash and timestamp indexes the planner and
// listeners query on. Existing indexes are left alone.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	located := []mongo.IndexModel{
		{Keys: bson.D{{Key: "geohash", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	}
	for _, coll := range []*mongo.Collection{s.issues, s.surface} {
		if _, err := coll.Indexes().CreateMany(ctx, located); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll.Name(), err)
		}
	}

	_, err := s.actions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create %s indexes: %w", s.actions.Name(), err)
	}
	return nil
}
