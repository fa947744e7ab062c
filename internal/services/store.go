package services

import (
	"context"
	"errors"
	"time"

	"github.com/folio/backend/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrLogNotFound          = errors.New("inconsistency log not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrVersionConflict      = errors.New("user record was modified concurrently")
	ErrUserExists           = errors.New("user already exists")
	ErrReasonRequired       = errors.New("a reason is required")
	ErrProfileIncomplete    = errors.New("profile still has missing or mismatched fields")
	ErrDeletionPending      = errors.New("account is being deleted")
)

// ErrDuplicateNotification is returned by Insert when an unread notification with the same
// dedup key and recipient already exists.
var ErrDuplicateNotification = errors.New("unread notification already exists")

// maxWriteAttempts bounds the read-validate-write retries on version conflicts.
const maxWriteAttempts = 3

// UserStore persists UserRecords. Update and Delete are conditioned on the record version.
type UserStore interface {
	Get(ctx context.Context, userID string) (*models.UserRecord, error)
	ListIDs(ctx context.Context) ([]string, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.UserRecord, error)
	CountSuspended(ctx context.Context) (int64, error)
	// Create stores a new record with version 1.
	Create(ctx context.Context, u *models.UserRecord) error
	// Update replaces the record if its stored version equals u.Version, then bumps u.Version.
	Update(ctx context.Context, u *models.UserRecord) error
	Delete(ctx context.Context, userID string, version int64) error
}

// LogStore persists InconsistencyLogs. Logs are never deleted.
type LogStore interface {
	// Upsert inserts logs whose id is not stored yet and leaves existing ones untouched.
	Upsert(ctx context.Context, logs ...models.InconsistencyLog) error
	Get(ctx context.Context, id string) (*models.InconsistencyLog, error)
	// List returns matching logs, newest first.
	List(ctx context.Context, filter models.LogFilter) ([]models.InconsistencyLog, error)
	// Resolve marks an unresolved log resolved and returns the stored log.
	Resolve(ctx context.Context, id string, at time.Time, notes, actor string) (*models.InconsistencyLog, error)
	ResolveForUser(ctx context.Context, userID string, at time.Time, notes, actor string) (int, error)
	Stats(ctx context.Context) (*models.InconsistencyStats, error)
}

type NotificationStore interface {
	// Insert fails with ErrDuplicateNotification rather than storing a second unread copy
	// of a deduplicated notification.
	Insert(ctx context.Context, n *models.Notification) error
	Update(ctx context.Context, n *models.Notification) error
	Get(ctx context.Context, id string) (*models.Notification, error)
	// FindUnread returns the unread notification with the dedup key, or nil.
	FindUnread(ctx context.Context, dedupKey, recipientEmail string) (*models.Notification, error)
	List(ctx context.Context, status models.NotificationStatusFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) (*models.Notification, error)
	MarkAllRead(ctx context.Context, at time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.NotificationStats, error)
}

// DeletedAccountStore is append-only.
type DeletedAccountStore interface {
	// Record inserts rec unless a record for the same user exists; it reports whether it inserted.
	Record(ctx context.Context, rec *models.DeletedAccountRecord) (bool, error)
	List(ctx context.Context) ([]models.DeletedAccountRecord, error)
}

// ContentCounter counts published items of a content collection.
type ContentCounter interface {
	Count(ctx context.Context, collection string) (int64, error)
}

// AuthDirectory is the identity provider side of a user. Lookup returns nil, nil for unknown users.
type AuthDirectory interface {
	Lookup(ctx context.Context, userID string) (*models.AuthRecord, error)
}

// SnapshotArchiver stores a copy of a deleted account outside the database.
type SnapshotArchiver interface {
	Archive(ctx context.Context, rec *models.DeletedAccountRecord) (string, error)
}

// AccountPurger removes content owned by a deleted user.
type AccountPurger interface {
	Purge(ctx context.Context, userID string) (int64, error)
}

type Mailer interface {
	SendLowContentEmail(ctx context.Context, n *models.Notification) error
}
