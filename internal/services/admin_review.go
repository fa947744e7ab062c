package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/folio/backend/internal/metrics"
	"github.com/folio/backend/internal/models"
)

// LogPageSize is the fixed admin list page size.
const LogPageSize = 50

// AdminReview backs the admin consistency panel.
type AdminReview struct {
	users   UserStore
	logs    LogStore
	deleted DeletedAccountStore
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewAdminReview(users UserStore, logs LogStore, deleted DeletedAccountStore, log *zap.Logger, m *metrics.Metrics) *AdminReview {
	return &AdminReview{
		users:   users,
		logs:    logs,
		deleted: deleted,
		now:     time.Now,
		log:     log.Named("admin"),
		metrics: m,
	}
}

func (a *AdminReview) Stats(ctx context.Context) (*models.InconsistencyStats, error) {
	st, err := a.logs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	suspended, err := a.users.CountSuspended(ctx)
	if err != nil {
		return nil, err
	}
	st.SuspendedUsers = suspended
	for _, t := range models.LogTypes {
		if _, ok := st.ByType[t]; !ok {
			st.ByType[t] = 0
		}
	}
	return st, nil
}

// ListLogs returns page (1-based) of the filtered logs. Page 0 returns every match.
func (a *AdminReview) ListLogs(ctx context.Context, filter models.LogFilter, page int) (*models.LogPage, error) {
	logs, err := a.logs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := &models.LogPage{Logs: logs, Total: len(logs)}
	if page <= 0 {
		return out, nil
	}

	out.Page = page
	out.PageSize = LogPageSize
	start := (page - 1) * LogPageSize
	if start >= len(logs) {
		out.Logs = []models.InconsistencyLog{}
		return out, nil
	}
	end := min(start+LogPageSize, len(logs))
	out.Logs = logs[start:end]
	return out, nil
}

// UserLogs works for deleted users too, as long as logs for them exist.
func (a *AdminReview) UserLogs(ctx context.Context, userID string) (*models.UserLogs, error) {
	logs, err := a.logs.List(ctx, models.LogFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	out := &models.UserLogs{UserID: userID, Logs: logs}

	u, err := a.users.Get(ctx, userID)
	switch {
	case err == nil:
		out.UserEmail = u.Email
		out.UserName = u.Name
		out.IsSuspended = u.IsSuspended
	case errors.Is(err, ErrUserNotFound):
		if len(logs) == 0 {
			return nil, ErrUserNotFound
		}
		out.UserEmail = logs[0].UserEmail
		out.UserName = logs[0].UserName
	default:
		return nil, err
	}
	return out, nil
}

// ResolveLog leaves an already-resolved log untouched and returns it as stored.
func (a *AdminReview) ResolveLog(ctx context.Context, logID, notes, actor string) (*models.InconsistencyLog, error) {
	before, err := a.logs.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	if before.Resolved {
		return before, nil
	}
	l, err := a.logs.Resolve(ctx, logID, a.now(), strings.TrimSpace(notes), actor)
	if err != nil {
		return nil, err
	}
	a.metrics.IncLogsResolved(1)
	a.log.Info("log resolved", zap.String("log_id", logID), zap.String("actor", actor))
	return l, nil
}

func (a *AdminReview) DeletedAccounts(ctx context.Context) ([]models.DeletedAccountRecord, error) {
	return a.deleted.List(ctx)
}

var csvHeader = []string{
	"id", "userId", "userEmail", "userName", "type", "details",
	"timestamp", "resolved", "resolvedAt", "resolvedBy", "resolutionNotes",
}

// ExportCSV writes every log matching filter, newest first.
func (a *AdminReview) ExportCSV(ctx context.Context, filter models.LogFilter, w io.Writer) (int, error) {
	logs, err := a.logs.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, l := range logs {
		resolvedAt := ""
		if l.ResolvedAt != nil {
			resolvedAt = l.ResolvedAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{
			l.ID,
			l.UserID,
			l.UserEmail,
			l.UserName,
			string(l.Type),
			detailsText(l.Details),
			l.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatBool(l.Resolved),
			resolvedAt,
			l.ResolvedBy,
			l.ResolutionNotes,
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	return len(logs), nil
}

func detailsText(d models.LogDetails) string {
	switch {
	case len(d.MissingFields) > 0:
		return "missing: " + strings.Join(d.MissingFields, ",")
	case len(d.Inconsistencies) > 0:
		parts := make([]string, len(d.Inconsistencies))
		for i, inc := range d.Inconsistencies {
			parts[i] = fmt.Sprintf("%s: expected %q, got %q", inc.Field, inc.Expected, inc.Actual)
		}
		return strings.Join(parts, "; ")
	}
	return d.Reason
}
