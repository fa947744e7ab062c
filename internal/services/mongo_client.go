package services

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colUsers           = "users"
	colLogs            = "inconsistency_logs"
	colNotifications   = "notifications"
	colDeletedAccounts = "deleted_accounts"
)

// ConnectMongo opens the single client shared by every Mongo store in the process.
func ConnectMongo(ctx context.Context, mongoURI string) (*mongo.Client, error) {
	// Atlas occasionally fails TLS negotiation unless TLS 1.2 is forced.
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
	}
	opts := options.Client().ApplyURI(mongoURI)
	if opts.TLSConfig != nil {
		opts.SetTLSConfig(tlsCfg)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the stores rely on. Failures are returned so callers
// can decide whether to log or abort.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(colUsers).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "is_suspended", Value: 1}, {Key: "suspension_expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	_, err = db.Collection(colLogs).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "resolved", Value: 1}}},
		{Keys: bson.D{{Key: "type", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("logs indexes: %w", err)
	}
	// One unread copy per dedup key and recipient.
	unreadDedup := options.Index().
		SetName("unread_dedup").
		SetUnique(true).
		SetPartialFilterExpression(bson.D{
			{Key: "read", Value: false},
			{Key: "dedup_key", Value: bson.D{{Key: "$exists", Value: true}}},
		})
	_, err = db.Collection(colNotifications).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "read", Value: 1}}},
		{Keys: bson.D{{Key: "dedup_key", Value: 1}, {Key: "recipient.email", Value: 1}}, Options: unreadDedup},
	})
	if err != nil {
		return fmt.Errorf("notifications indexes: %w", err)
	}
	return nil
}

// withoutID marshals v into a document and drops _id, for $setOnInsert payloads whose id
// comes from the upsert filter.
func withoutID(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "_id")
	return doc, nil
}
