package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/folio/backend/internal/metrics"
	"github.com/folio/backend/internal/models"
)

// SuspensionService moves accounts out of the suspended state, either through the user
// fixing their profile or through an admin restore.
type SuspensionService struct {
	users    UserStore
	logs     LogStore
	auth     AuthDirectory
	required []string
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewSuspensionService(users UserStore, logs LogStore, auth AuthDirectory, required []string, log *zap.Logger, m *metrics.Metrics) *SuspensionService {
	return &SuspensionService{
		users:    users,
		logs:     logs,
		auth:     auth,
		required: required,
		now:      time.Now,
		log:      log.Named("suspension"),
		metrics:  m,
	}
}

// ProfileStatus returns the caller's own record, creating it from the token claims on first use.
func (s *SuspensionService) ProfileStatus(ctx context.Context, userID, email, name string) (*models.ProfileStatus, error) {
	u, err := s.getOrCreate(ctx, userID, email, name)
	if err != nil {
		return nil, err
	}
	return s.status(u), nil
}

func (s *SuspensionService) getOrCreate(ctx context.Context, userID, email, name string) (*models.UserRecord, error) {
	u, err := s.users.Get(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	u = &models.UserRecord{
		UserID:          userID,
		Email:           strings.TrimSpace(email),
		Name:            strings.TrimSpace(name),
		MissingFields:   []string{},
		Inconsistencies: []models.Inconsistency{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// Another request created it first.
		if errors.Is(err, ErrUserExists) {
			return s.users.Get(ctx, userID)
		}
		return nil, err
	}
	return u, nil
}

func (s *SuspensionService) status(u *models.UserRecord) *models.ProfileStatus {
	data := u.Clone()
	data.Outbox = nil
	data.AcknowledgedFingerprint = ""
	return &models.ProfileStatus{
		IsSuspended:         u.IsSuspended,
		MissingFields:       nonNilStrings(u.MissingFields),
		Inconsistencies:     nonNilInconsistencies(u.Inconsistencies),
		SuspendedAt:         u.SuspendedAt,
		SuspensionExpiresAt: u.SuspensionExpiresAt,
		SuspensionReason:    u.SuspensionReason,
		DaysRemaining:       u.DaysRemaining(s.now()),
		UserData:            data,
	}
}

// CompleteProfile applies the submitted fields and re-validates. A clean result lifts the
// suspension and resolves the user's open logs. Otherwise the fields are still saved and
// the returned error is ErrProfileIncomplete alongside the remaining problems.
func (s *SuspensionService) CompleteProfile(ctx context.Context, userID string, req *models.CompleteProfileRequest) (*models.ProfileStatus, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		u, err := s.users.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u.DeletionPending {
			return nil, ErrDeletionPending
		}
		now := s.now()

		if req.Name != nil {
			u.Name = strings.TrimSpace(*req.Name)
		}
		if req.Email != nil {
			u.Email = strings.TrimSpace(*req.Email)
		}
		if len(req.Profile) > 0 {
			if u.Profile == nil {
				u.Profile = make(map[string]string, len(req.Profile))
			}
			for k, v := range req.Profile {
				u.Profile[k] = strings.TrimSpace(v)
			}
		}

		auth, err := s.auth.Lookup(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("auth lookup: %w", err)
		}
		res := Validate(u, auth, s.required)
		u.MissingFields = res.MissingFields
		u.Inconsistencies = res.Inconsistencies
		u.UpdatedAt = now.UTC()

		lifted := false
		if res.Clean() && u.IsSuspended {
			u.ClearSuspension()
			u.AcknowledgedFingerprint = ""
			u.RestoreHistory = append(u.RestoreHistory, models.RestoreEntry{
				Actor:  userID,
				Reason: "profile completed",
				Source: models.RestoreSourceProfile,
				At:     now.UTC(),
			})
			lifted = true
		}

		err = s.users.Update(ctx, u)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update user %s: %w", userID, err)
		}

		if !res.Clean() {
			return s.status(u), ErrProfileIncomplete
		}
		if lifted {
			s.metrics.IncUsersRestored(models.RestoreSourceProfile)
			s.log.Info("suspension lifted by profile completion", zap.String("user_id", userID))
		}
		s.resolveOpenLogs(ctx, userID, now, "resolved by profile completion", userID)
		return s.status(u), nil
	}
	return nil, fmt.Errorf("complete profile %s: %w", userID, ErrVersionConflict)
}

// Restore lifts a suspension on an admin's authority. The anomaly set that caused it is
// acknowledged so the next check does not suspend the account again for the same reason.
// Restoring an active account succeeds without changes. An account the expiry sweep has
// already claimed cannot be restored.
func (s *SuspensionService) Restore(ctx context.Context, userID, actor, reason string) (*models.UserRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		u, err := s.users.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u.DeletionPending {
			return nil, ErrDeletionPending
		}
		if !u.IsSuspended {
			return u, nil
		}
		now := s.now()

		u.AcknowledgedFingerprint = u.SuspensionReason
		u.ClearSuspension()
		u.RestoreHistory = append(u.RestoreHistory, models.RestoreEntry{
			Actor:  actor,
			Reason: reason,
			Source: models.RestoreSourceAdmin,
			At:     now.UTC(),
		})
		u.UpdatedAt = now.UTC()

		err = s.users.Update(ctx, u)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update user %s: %w", userID, err)
		}

		s.metrics.IncUsersRestored(models.RestoreSourceAdmin)
		s.log.Info("user restored",
			zap.String("user_id", userID),
			zap.String("actor", actor),
			zap.String("reason", reason))
		s.resolveOpenLogs(ctx, userID, now, fmt.Sprintf("restored by %s: %s", actor, reason), actor)
		return u, nil
	}
	return nil, fmt.Errorf("restore %s: %w", userID, ErrVersionConflict)
}

func (s *SuspensionService) resolveOpenLogs(ctx context.Context, userID string, now time.Time, notes, actor string) {
	resolveOpenLogs(ctx, s.users, s.logs, userID, now, notes, actor, s.log, s.metrics)
}

// resolveOpenLogs flushes anything still staged on the record first, so staged logs are
// resolved too.
func resolveOpenLogs(ctx context.Context, users UserStore, logs LogStore, userID string, now time.Time, notes, actor string, log *zap.Logger, m *metrics.Metrics) {
	if err := flushOutbox(ctx, users, logs, userID); err != nil {
		log.Warn("outbox flush deferred", zap.String("user_id", userID), zap.Error(err))
	}
	n, err := logs.ResolveForUser(ctx, userID, now, notes, actor)
	if err != nil {
		log.Error("auto-resolve failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if n > 0 {
		m.IncLogsResolved(n)
	}
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilInconsistencies(v []models.Inconsistency) []models.Inconsistency {
	if v == nil {
		return []models.Inconsistency{}
	}
	return v
}
