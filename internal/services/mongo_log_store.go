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

type MongoLogStore struct {
	col *mongo.Collection
}

func NewMongoLogStore(db *mongo.Database) *MongoLogStore {
	return &MongoLogStore{col: db.Collection(colLogs)}
}

// Upsert uses $setOnInsert so replaying an outbox never overwrites a resolution.
func (s *MongoLogStore) Upsert(ctx context.Context, logs ...models.InconsistencyLog) error {
	if len(logs) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(logs))
	for i := range logs {
		doc, err := withoutID(logs[i])
		if err != nil {
			return err
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": logs[i].ID}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}
	_, err := s.col.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return err
}

func (s *MongoLogStore) Get(ctx context.Context, id string) (*models.InconsistencyLog, error) {
	var l models.InconsistencyLog
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	return &l, nil
}

func logFilterDoc(f models.LogFilter) bson.M {
	q := bson.M{}
	switch f.Status {
	case models.LogStatusResolved:
		q["resolved"] = true
	case models.LogStatusUnresolved:
		q["resolved"] = false
	}
	if f.Type != "" {
		q["type"] = f.Type
	}
	if f.UserID != "" {
		q["user_id"] = f.UserID
	}
	return q
}

func (s *MongoLogStore) List(ctx context.Context, filter models.LogFilter) ([]models.InconsistencyLog, error) {
	cur, err := s.col.Find(ctx, logFilterDoc(filter), options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.InconsistencyLog, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoLogStore) Resolve(ctx context.Context, id string, at time.Time, notes, actor string) (*models.InconsistencyLog, error) {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "resolved": false}, bson.M{
		"$set": resolutionSet(at, notes, actor),
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *MongoLogStore) ResolveForUser(ctx context.Context, userID string, at time.Time, notes, actor string) (int, error) {
	res, err := s.col.UpdateMany(ctx, bson.M{"user_id": userID, "resolved": false}, bson.M{
		"$set": resolutionSet(at, notes, actor),
	})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func resolutionSet(at time.Time, notes, actor string) bson.M {
	set := bson.M{
		"resolved":    true,
		"resolved_at": at.UTC(),
	}
	if notes != "" {
		set["resolution_notes"] = notes
	}
	if actor != "" {
		set["resolved_by"] = actor
	}
	return set
}

func (s *MongoLogStore) Stats(ctx context.Context) (*models.InconsistencyStats, error) {
	st := &models.InconsistencyStats{ByType: make(map[models.LogType]int64)}

	cur, err := s.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$type"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "unresolved", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{"$resolved", 0, 1}},
			}}}},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			Type       models.LogType `bson:"_id"`
			Count      int64          `bson:"count"`
			Unresolved int64          `bson:"unresolved"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		st.ByType[row.Type] = row.Count
		st.TotalLogs += row.Count
		st.UnresolvedLogs += row.Unresolved
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return st, nil
}
