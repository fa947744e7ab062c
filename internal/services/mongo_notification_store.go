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

type MongoNotificationStore struct {
	col *mongo.Collection
}

func NewMongoNotificationStore(db *mongo.Database) *MongoNotificationStore {
	return &MongoNotificationStore{col: db.Collection(colNotifications)}
}

// Insert relies on the partial unique index from EnsureIndexes to refuse a second unread
// copy of a deduplicated notification.
func (s *MongoNotificationStore) Insert(ctx context.Context, n *models.Notification) error {
	if _, err := s.col.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateNotification
		}
		return err
	}
	return nil
}

func (s *MongoNotificationStore) Update(ctx context.Context, n *models.Notification) error {
	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": n.ID}, n)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *MongoNotificationStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *MongoNotificationStore) FindUnread(ctx context.Context, dedupKey, recipientEmail string) (*models.Notification, error) {
	var n models.Notification
	err := s.col.FindOne(ctx, bson.M{
		"dedup_key":       dedupKey,
		"recipient.email": recipientEmail,
		"read":            false,
	}, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func (s *MongoNotificationStore) List(ctx context.Context, status models.NotificationStatusFilter) ([]models.Notification, error) {
	q := bson.M{}
	switch status {
	case models.NotificationStatusRead:
		q["read"] = true
	case models.NotificationStatusUnread:
		q["read"] = false
	}
	cur, err := s.col.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.Notification, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoNotificationStore) MarkRead(ctx context.Context, id string, at time.Time) (*models.Notification, error) {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "read": false}, bson.M{
		"$set": bson.M{"read": true, "read_at": at.UTC()},
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *MongoNotificationStore) MarkAllRead(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.col.UpdateMany(ctx, bson.M{"read": false}, bson.M{
		"$set": bson.M{"read": true, "read_at": at.UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoNotificationStore) Delete(ctx context.Context, id string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *MongoNotificationStore) Stats(ctx context.Context) (*models.NotificationStats, error) {
	total, err := s.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	unread, err := s.col.CountDocuments(ctx, bson.M{"read": false})
	if err != nil {
		return nil, err
	}
	return &models.NotificationStats{Total: total, Unread: unread}, nil
}
