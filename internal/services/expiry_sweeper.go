package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/folio/backend/internal/metrics"
	"github.com/folio/backend/internal/models"
)

const expiryReason = "suspension grace period expired"

// ExpirySweeper deletes accounts whose suspension outlived the grace period. Each step is
// an upsert or a conditional delete, so a sweep interrupted at any point converges when
// it runs again.
type ExpirySweeper struct {
	users    UserStore
	logs     LogStore
	deleted  DeletedAccountStore
	archiver SnapshotArchiver
	purger   AccountPurger
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewExpirySweeper accepts a nil archiver or purger when those backends are not configured.
func NewExpirySweeper(users UserStore, logs LogStore, deleted DeletedAccountStore, archiver SnapshotArchiver, purger AccountPurger, log *zap.Logger, m *metrics.Metrics) *ExpirySweeper {
	return &ExpirySweeper{
		users:    users,
		logs:     logs,
		deleted:  deleted,
		archiver: archiver,
		purger:   purger,
		now:      time.Now,
		log:      log.Named("sweeper"),
		metrics:  m,
	}
}

func (s *ExpirySweeper) Sweep(ctx context.Context) (*models.SweepSummary, error) {
	now := s.now()
	expired, err := s.users.ListExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}

	sum := &models.SweepSummary{Expired: len(expired)}
	for _, u := range expired {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		deleted, err := s.expire(ctx, u.UserID, now)
		if err != nil {
			sum.Failed++
			s.log.Error("expiry failed", zap.String("user_id", u.UserID), zap.Error(err))
			continue
		}
		if deleted {
			sum.Deleted++
		}
	}
	if sum.Expired > 0 {
		s.log.Info("expiry sweep finished",
			zap.Int("expired", sum.Expired),
			zap.Int("deleted", sum.Deleted),
			zap.Int("failed", sum.Failed))
	}
	return sum, nil
}

// expire claims the record with a conditional write before touching anything else, so a
// restore either lands first and wins or is refused afterwards. Every later step is safe
// to repeat; a run that stops part way leaves the claim for the next sweep to finish.
func (s *ExpirySweeper) expire(ctx context.Context, userID string, now time.Time) (bool, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		u, err := s.users.Get(ctx, userID)
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !u.DeletionPending {
			if !u.Expired(now) {
				return false, nil
			}
			u.DeletionPending = true
			u.UpdatedAt = now.UTC()
			err = s.users.Update(ctx, u)
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			if errors.Is(err, ErrUserNotFound) {
				return false, nil
			}
			if err != nil {
				return false, fmt.Errorf("claim user: %w", err)
			}
		}

		if err := s.finish(ctx, u, now); err != nil {
			return false, err
		}

		err = s.users.Delete(ctx, userID, u.Version)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("delete user: %w", err)
		}

		s.metrics.IncAccountsDeleted()
		s.metrics.IncLogsCreated(string(models.LogAccountDeleted))
		s.log.Info("account deleted after grace period", zap.String("user_id", userID))
		return true, nil
	}
	return false, ErrVersionConflict
}

// finish writes the audit trail and purges owned content for a claimed record.
func (s *ExpirySweeper) finish(ctx context.Context, u *models.UserRecord, now time.Time) error {
	if len(u.Outbox) > 0 {
		if err := drainOutbox(ctx, s.logs, u); err != nil {
			return err
		}
	}

	snapshot := u.Clone()
	snapshot.Outbox = nil
	snapshot.DeletionPending = false
	rec := &models.DeletedAccountRecord{
		UserID:    u.UserID,
		UserData:  *snapshot,
		Reason:    expiryReason,
		DeletedAt: now.UTC(),
	}
	if s.archiver != nil {
		uri, err := s.archiver.Archive(ctx, rec)
		if err != nil {
			return fmt.Errorf("archive snapshot: %w", err)
		}
		rec.ArchiveURI = uri
	}
	if _, err := s.deleted.Record(ctx, rec); err != nil {
		return fmt.Errorf("record deleted account: %w", err)
	}

	if err := s.logs.Upsert(ctx, models.InconsistencyLog{
		ID:        "account-deleted-" + u.UserID,
		UserID:    u.UserID,
		UserEmail: u.Email,
		UserName:  u.Name,
		Type:      models.LogAccountDeleted,
		Details:   models.LogDetails{Reason: expiryReason},
		Timestamp: now.UTC(),
	}); err != nil {
		return fmt.Errorf("write deletion log: %w", err)
	}

	if s.purger != nil {
		n, err := s.purger.Purge(ctx, u.UserID)
		if err != nil {
			return fmt.Errorf("purge owned content: %w", err)
		}
		if n > 0 {
			s.log.Debug("purged owned content", zap.String("user_id", u.UserID), zap.Int64("documents", n))
		}
	}
	return nil
}
