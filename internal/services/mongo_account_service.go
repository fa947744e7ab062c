package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/folio/backend/internal/models"
)

// MongoDeletedAccountStore keeps one audit snapshot per deleted user, keyed by user id.
type MongoDeletedAccountStore struct {
	col *mongo.Collection
}

func NewMongoDeletedAccountStore(db *mongo.Database) *MongoDeletedAccountStore {
	return &MongoDeletedAccountStore{col: db.Collection(colDeletedAccounts)}
}

func (s *MongoDeletedAccountStore) Record(ctx context.Context, rec *models.DeletedAccountRecord) (bool, error) {
	doc, err := withoutID(rec)
	if err != nil {
		return false, err
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": rec.UserID}, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

func (s *MongoDeletedAccountStore) List(ctx context.Context) ([]models.DeletedAccountRecord, error) {
	cur, err := s.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "deleted_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.DeletedAccountRecord, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MongoContentCounter counts published documents of the portfolio content collections.
type MongoContentCounter struct {
	db *mongo.Database
}

func NewMongoContentCounter(db *mongo.Database) *MongoContentCounter {
	return &MongoContentCounter{db: db}
}

// Count treats documents without a published flag as published.
func (c *MongoContentCounter) Count(ctx context.Context, collection string) (int64, error) {
	return c.db.Collection(collection).CountDocuments(ctx, bson.M{"published": bson.M{"$ne": false}})
}

// MongoAccountPurger deletes everything a user owns across the configured collections.
type MongoAccountPurger struct {
	db          *mongo.Database
	collections []string
}

func NewMongoAccountPurger(db *mongo.Database, collections []string) *MongoAccountPurger {
	return &MongoAccountPurger{db: db, collections: collections}
}

func (p *MongoAccountPurger) Purge(ctx context.Context, userID string) (int64, error) {
	var total int64
	for _, name := range p.collections {
		res, err := p.db.Collection(name).DeleteMany(ctx, bson.M{"user_id": userID})
		if err != nil {
			return total, err
		}
		total += res.DeletedCount
	}
	return total, nil
}
