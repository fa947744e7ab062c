package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/folio/backend/internal/models"
)

type MongoUserStore struct {
	col *mongo.Collection
}

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{col: db.Collection(colUsers)}
}

func (s *MongoUserStore) Get(ctx context.Context, userID string) (*models.UserRecord, error) {
	var u models.UserRecord
	if err := s.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *MongoUserStore) ListIDs(ctx context.Context) ([]string, error) {
	cur, err := s.col.Find(ctx, bson.M{}, options.Find().
		SetProjection(bson.M{"user_id": 1}).
		SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	ids := make([]string, 0)
	for cur.Next(ctx) {
		var d struct {
			UserID string `bson:"user_id"`
		}
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		ids = append(ids, d.UserID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MongoUserStore) ListExpired(ctx context.Context, now time.Time) ([]*models.UserRecord, error) {
	cur, err := s.col.Find(ctx, bson.M{
		"is_suspended":          true,
		"suspension_expires_at": bson.M{"$lt": now},
	}, options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*models.UserRecord, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoUserStore) CountSuspended(ctx context.Context) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{"is_suspended": true})
}

func (s *MongoUserStore) Create(ctx context.Context, u *models.UserRecord) error {
	u.Version = 1
	if _, err := s.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

// Update swaps the whole document in one write, so suspension fields and the outbox never
// diverge. The filter on version makes concurrent writers lose cleanly.
func (s *MongoUserStore) Update(ctx context.Context, u *models.UserRecord) error {
	expected := u.Version
	next := u.Clone()
	next.Version = expected + 1

	res, err := s.col.ReplaceOne(ctx, bson.M{"user_id": u.UserID, "version": expected}, next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return s.missOrConflict(ctx, u.UserID)
	}
	u.Version = next.Version
	return nil
}

func (s *MongoUserStore) Delete(ctx context.Context, userID string, version int64) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"user_id": userID, "version": version})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return s.missOrConflict(ctx, userID)
	}
	return nil
}

func (s *MongoUserStore) missOrConflict(ctx context.Context, userID string) error {
	n, err := s.col.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return ErrVersionConflict
}
