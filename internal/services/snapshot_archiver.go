package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/crypto/blake2b"
	"google.golang.org/api/option"

	"github.com/folio/backend/internal/models"
)

// GCSSnapshotArchiver writes a JSON copy of each deleted account to a Cloud Storage bucket.
type GCSSnapshotArchiver struct {
	gcs    *storage.Client
	bucket string
}

// NewGCSSnapshotArchiver creates the storage client once at startup.
func NewGCSSnapshotArchiver(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSSnapshotArchiver, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archiver: storage client: %w", err)
	}
	return &GCSSnapshotArchiver{gcs: client, bucket: bucket}, nil
}

func (a *GCSSnapshotArchiver) Close() error {
	return a.gcs.Close()
}

// Archive overwrites any earlier snapshot of the same user, so retries are harmless.
func (a *GCSSnapshotArchiver) Archive(ctx context.Context, rec *models.DeletedAccountRecord) (string, error) {
	name := snapshotObjectName(rec.UserID)

	w := a.gcs.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{
		"user_id":    rec.UserID,
		"email_hash": emailHash(rec.UserData.Email),
		"reason":     rec.Reason,
	}
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, name), nil
}

func snapshotObjectName(userID string) string {
	return "deleted-accounts/" + userID + ".json"
}

// emailHash lets operators find an archived account by email without storing the address
// in object metadata.
func emailHash(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
