package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/folio/backend/internal/metrics"
	"github.com/folio/backend/internal/models"
)

// CheckResult is the outcome of validating one user against the auth directory.
type CheckResult struct {
	MissingFields   []string               `json:"missingFields"`
	Inconsistencies []models.Inconsistency `json:"inconsistencies"`
	AuthMissing     bool                   `json:"authMissing"`
}

func (r CheckResult) Clean() bool {
	return len(r.MissingFields) == 0 && len(r.Inconsistencies) == 0 && !r.AuthMissing
}

// Fingerprint summarizes the anomaly set. Two results with the same fingerprint describe
// the same problem, which is what makes repeated checks idempotent.
func (r CheckResult) Fingerprint() string {
	parts := make([]string, 0, 3)
	if len(r.MissingFields) > 0 {
		parts = append(parts, string(models.LogMissingFields)+": "+strings.Join(r.MissingFields, ","))
	}
	if r.AuthMissing {
		parts = append(parts, string(models.LogMissingAuthRecord))
	}
	if len(r.Inconsistencies) > 0 {
		fields := make([]string, len(r.Inconsistencies))
		for i, inc := range r.Inconsistencies {
			fields[i] = inc.Field
		}
		parts = append(parts, string(models.LogDataMismatch)+": "+strings.Join(fields, ","))
	}
	return strings.Join(parts, "; ")
}

// Validate is a pure function of the two records and the required-field list.
// Cross-source comparison only happens where both sides hold a value; an empty side is
// reported as a missing field instead.
func Validate(u *models.UserRecord, auth *models.AuthRecord, required []string) CheckResult {
	res := CheckResult{
		MissingFields:   []string{},
		Inconsistencies: []models.Inconsistency{},
	}
	for _, f := range required {
		if u.FieldValue(f) == "" {
			res.MissingFields = append(res.MissingFields, f)
		}
	}

	if auth == nil {
		res.AuthMissing = true
		return res
	}
	pairs := []struct {
		field    string
		expected string
	}{
		{"email", strings.TrimSpace(auth.Email)},
		{"name", strings.TrimSpace(auth.DisplayName)},
	}
	for _, p := range pairs {
		actual := u.FieldValue(p.field)
		if p.expected == "" || actual == "" || p.expected == actual {
			continue
		}
		res.Inconsistencies = append(res.Inconsistencies, models.Inconsistency{
			Field:    p.field,
			Expected: p.expected,
			Actual:   actual,
		})
	}
	return res
}

// anomalyLogs builds one log per anomaly type found in res.
func anomalyLogs(u *models.UserRecord, res CheckResult, now time.Time) []models.InconsistencyLog {
	base := models.InconsistencyLog{
		UserID:    u.UserID,
		UserEmail: u.Email,
		UserName:  u.Name,
		Timestamp: now.UTC(),
	}
	out := make([]models.InconsistencyLog, 0, 3)
	if len(res.MissingFields) > 0 {
		l := base
		l.ID = uuid.NewString()
		l.Type = models.LogMissingFields
		l.Details.MissingFields = append([]string(nil), res.MissingFields...)
		out = append(out, l)
	}
	if res.AuthMissing {
		l := base
		l.ID = uuid.NewString()
		l.Type = models.LogMissingAuthRecord
		l.Details.Reason = "no identity provider record for user " + u.UserID
		out = append(out, l)
	}
	if len(res.Inconsistencies) > 0 {
		l := base
		l.ID = uuid.NewString()
		l.Type = models.LogDataMismatch
		l.Details.Inconsistencies = append([]models.Inconsistency(nil), res.Inconsistencies...)
		out = append(out, l)
	}
	return out
}

// CheckOutcome reports what CheckUser did to one record.
type CheckOutcome struct {
	Result    CheckResult               `json:"result"`
	Suspended bool                      `json:"suspended"`
	Lifted    bool                      `json:"lifted"`
	Changed   bool                      `json:"changed"`
	Logs      []models.InconsistencyLog `json:"logs"`
}

type ConsistencyChecker struct {
	users    UserStore
	logs     LogStore
	auth     AuthDirectory
	required []string
	grace    time.Duration
	now      func() time.Time
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewConsistencyChecker(users UserStore, logs LogStore, auth AuthDirectory, required []string, grace time.Duration, log *zap.Logger, m *metrics.Metrics) *ConsistencyChecker {
	return &ConsistencyChecker{
		users:    users,
		logs:     logs,
		auth:     auth,
		required: required,
		grace:    grace,
		now:      time.Now,
		log:      log.Named("checker"),
		metrics:  m,
	}
}

// CheckUser validates one user and applies or lifts suspension. The suspension fields and
// the new logs land in a single conditional write; on a version conflict the whole
// read-validate-write cycle starts over.
func (c *ConsistencyChecker) CheckUser(ctx context.Context, userID string) (*CheckOutcome, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		u, err := c.users.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		auth, err := c.auth.Lookup(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("auth lookup: %w", err)
		}

		res := Validate(u, auth, c.required)
		if u.DeletionPending {
			// Claimed by the expiry sweep; nothing may write to it any more.
			c.metrics.IncUsersChecked()
			return &CheckOutcome{Result: res}, nil
		}
		now := c.now()
		out := c.apply(u, res, now)

		if !out.Changed {
			c.metrics.IncUsersChecked()
			if len(u.Outbox) > 0 {
				c.flushOutbox(ctx, userID)
			}
			return out, nil
		}

		err = c.users.Update(ctx, u)
		if errors.Is(err, ErrVersionConflict) {
			c.log.Debug("version conflict, retrying", zap.String("user_id", userID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update user %s: %w", userID, err)
		}

		c.metrics.IncUsersChecked()
		if out.Suspended {
			c.metrics.IncUsersSuspended()
			c.log.Info("user suspended",
				zap.String("user_id", userID),
				zap.String("reason", u.SuspensionReason),
				zap.Timep("expires_at", u.SuspensionExpiresAt))
		}
		for _, l := range out.Logs {
			c.metrics.IncLogsCreated(string(l.Type))
		}
		if out.Lifted {
			c.metrics.IncUsersRestored(models.RestoreSourceChecker)
			c.log.Info("suspension lifted, record is consistent again", zap.String("user_id", userID))
			resolveOpenLogs(ctx, c.users, c.logs, userID, now, "resolved by consistency check", models.RestoreSourceChecker, c.log, c.metrics)
			return out, nil
		}
		c.flushOutbox(ctx, userID)
		return out, nil
	}
	return nil, fmt.Errorf("check user %s: %w", userID, ErrVersionConflict)
}

// apply mutates u in memory and reports whether anything needs writing.
func (c *ConsistencyChecker) apply(u *models.UserRecord, res CheckResult, now time.Time) *CheckOutcome {
	out := &CheckOutcome{Result: res}

	if !slices.Equal(u.MissingFields, res.MissingFields) || !slices.Equal(u.Inconsistencies, res.Inconsistencies) {
		u.MissingFields = res.MissingFields
		u.Inconsistencies = res.Inconsistencies
		out.Changed = true
	}
	if res.Clean() {
		if u.AcknowledgedFingerprint != "" {
			u.AcknowledgedFingerprint = ""
			out.Changed = true
		}
		if u.IsSuspended {
			u.ClearSuspension()
			u.RestoreHistory = append(u.RestoreHistory, models.RestoreEntry{
				Actor:  models.RestoreSourceChecker,
				Reason: "record passed validation",
				Source: models.RestoreSourceChecker,
				At:     now.UTC(),
			})
			out.Lifted = true
			out.Changed = true
		}
		if out.Changed {
			u.UpdatedAt = now.UTC()
		}
		return out
	}

	fp := res.Fingerprint()
	switch {
	case u.IsSuspended && u.SuspensionReason == fp:
		// Same problem, already suspended for it.
	case !u.IsSuspended && u.AcknowledgedFingerprint == fp:
		// An admin restored the account with this exact anomaly set.
	case u.IsSuspended:
		// New anomaly while suspended: log it but keep the original grace period.
		u.SuspensionReason = fp
		out.Logs = anomalyLogs(u, res, now)
		out.Changed = true
	default:
		u.Suspend(now, c.grace, fp)
		out.Logs = anomalyLogs(u, res, now)
		out.Suspended = true
		out.Changed = true
	}
	u.Outbox = append(u.Outbox, out.Logs...)
	if out.Changed {
		u.UpdatedAt = now.UTC()
	}
	return out
}

// flushOutbox copies staged logs into the log store and clears them from the record.
// A failure leaves the outbox in place for the next pass.
func (c *ConsistencyChecker) flushOutbox(ctx context.Context, userID string) {
	if err := flushOutbox(ctx, c.users, c.logs, userID); err != nil {
		c.log.Warn("outbox flush deferred", zap.String("user_id", userID), zap.Error(err))
	}
}

func flushOutbox(ctx context.Context, users UserStore, logs LogStore, userID string) error {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		u, err := users.Get(ctx, userID)
		if err != nil {
			return err
		}
		if len(u.Outbox) == 0 {
			return nil
		}
		if err := drainOutbox(ctx, logs, u); err != nil {
			return err
		}
		err = users.Update(ctx, u)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		return err
	}
	return ErrVersionConflict
}

// drainOutbox writes u.Outbox to the log store and empties it in memory; the caller
// persists u. Log ids make the write safe to repeat.
func drainOutbox(ctx context.Context, logs LogStore, u *models.UserRecord) error {
	if len(u.Outbox) == 0 {
		return nil
	}
	if err := logs.Upsert(ctx, u.Outbox...); err != nil {
		return fmt.Errorf("write outbox logs: %w", err)
	}
	u.Outbox = nil
	return nil
}

// RunAll checks every user. Failures are logged and counted; the pass carries on.
func (c *ConsistencyChecker) RunAll(ctx context.Context) (*models.CheckSummary, error) {
	started := c.now()
	sum := &models.CheckSummary{StartedAt: started.UTC()}

	ids, err := c.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Scanned++
		out, err := c.CheckUser(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				sum.Unchanged++
				continue
			}
			sum.Failed++
			c.log.Error("check failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if out.Suspended {
			sum.Suspended++
		}
		if out.Lifted {
			sum.Lifted++
		}
		if !out.Changed {
			sum.Unchanged++
		}
		sum.Logs += len(out.Logs)
	}
	sum.Duration = c.now().Sub(started).String()
	c.log.Info("consistency pass finished",
		zap.Int("scanned", sum.Scanned),
		zap.Int("suspended", sum.Suspended),
		zap.Int("lifted", sum.Lifted),
		zap.Int("failed", sum.Failed),
		zap.Int("logs", sum.Logs))
	return sum, nil
}
