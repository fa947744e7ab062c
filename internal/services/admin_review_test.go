package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/folio/backend/internal/models"
)

type ReviewSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	stores memStores
	review *AdminReview
}

func TestReviewSuite(t *testing.T) {
	suite.Run(t, new(ReviewSuite))
}

func (s *ReviewSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = t0.Add(time.Hour)
	s.stores = newMemStores(s.T())
	s.review = NewAdminReview(s.stores.users, s.stores.logs, s.stores.deleted, zap.NewNop(), nil)
	s.review.now = func() time.Time { return s.now }
}

func (s *ReviewSuite) addLog(id, userID string, typ models.LogType, at time.Time) {
	s.Require().NoError(s.stores.logs.Upsert(s.ctx, models.InconsistencyLog{
		ID:        id,
		UserID:    userID,
		UserEmail: userID + "@example.com",
		UserName:  "User " + userID,
		Type:      typ,
		Details:   models.LogDetails{MissingFields: []string{"email"}},
		Timestamp: at,
	}))
}

func (s *ReviewSuite) TestResolveLog() {
	s.addLog("L1", "u1", models.LogMissingFields, t0)
	s.addLog("L2", "u1", models.LogDataMismatch, t0)

	before, err := s.review.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), before.UnresolvedLogs)

	l, err := s.review.ResolveLog(s.ctx, "L1", "fixed manually", "admin@example.com")
	s.Require().NoError(err)
	s.True(l.Resolved)
	s.Equal("fixed manually", l.ResolutionNotes)
	s.Equal("admin@example.com", l.ResolvedBy)
	s.Require().NotNil(l.ResolvedAt)
	s.Equal(s.now, *l.ResolvedAt)

	after, err := s.review.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), after.UnresolvedLogs)
	s.Equal(int64(2), after.TotalLogs)
}

func (s *ReviewSuite) TestResolveTwiceKeepsFirstResolution() {
	s.addLog("L1", "u1", models.LogMissingFields, t0)
	_, err := s.review.ResolveLog(s.ctx, "L1", "first", "a@example.com")
	s.Require().NoError(err)

	s.now = s.now.Add(time.Hour)
	l, err := s.review.ResolveLog(s.ctx, "L1", "second", "b@example.com")
	s.Require().NoError(err)
	s.Equal("first", l.ResolutionNotes)
	s.Equal("a@example.com", l.ResolvedBy)
	s.Equal(t0.Add(time.Hour), *l.ResolvedAt)
}

func (s *ReviewSuite) TestResolveUnknownLog() {
	_, err := s.review.ResolveLog(s.ctx, "nope", "", "admin@example.com")
	s.ErrorIs(err, ErrLogNotFound)
}

func (s *ReviewSuite) TestResolveDoesNotLiftSuspension() {
	u := user("u1", "Ada", "")
	u.Suspend(t0, week, "missing_fields: email")
	s.Require().NoError(s.stores.users.Create(s.ctx, u))
	s.addLog("L1", "u1", models.LogMissingFields, t0)

	_, err := s.review.ResolveLog(s.ctx, "L1", "looked at it", "admin@example.com")
	s.Require().NoError(err)

	got, _ := s.stores.users.Get(s.ctx, "u1")
	s.True(got.IsSuspended)
}

func (s *ReviewSuite) TestStatsCountsEveryType() {
	s.addLog("L1", "u1", models.LogMissingFields, t0)
	s.Require().NoError(s.stores.users.Create(s.ctx, user("u2", "Bob", "bob@example.com")))
	u := user("u1", "Ada", "")
	u.Suspend(t0, week, "missing_fields: email")
	s.Require().NoError(s.stores.users.Create(s.ctx, u))

	st, err := s.review.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), st.SuspendedUsers)
	s.Equal(map[models.LogType]int64{
		models.LogDataMismatch:      0,
		models.LogMissingFields:     1,
		models.LogMissingAuthRecord: 0,
		models.LogAccountDeleted:    0,
	}, st.ByType)
}

func (s *ReviewSuite) TestListLogsPaging() {
	for i := 0; i < 120; i++ {
		s.addLog(fmt.Sprintf("L%03d", i), "u1", models.LogMissingFields, t0.Add(time.Duration(i)*time.Minute))
	}

	all, err := s.review.ListLogs(s.ctx, models.LogFilter{}, 0)
	s.Require().NoError(err)
	s.Len(all.Logs, 120)
	s.Equal(120, all.Total)
	s.Zero(all.Page)

	first, err := s.review.ListLogs(s.ctx, models.LogFilter{}, 1)
	s.Require().NoError(err)
	s.Len(first.Logs, LogPageSize)
	s.Equal(120, first.Total)
	s.Equal("L119", first.Logs[0].ID, "newest first")

	third, err := s.review.ListLogs(s.ctx, models.LogFilter{}, 3)
	s.Require().NoError(err)
	s.Len(third.Logs, 20)
	s.Equal("L000", third.Logs[19].ID)

	past, err := s.review.ListLogs(s.ctx, models.LogFilter{}, 4)
	s.Require().NoError(err)
	s.NotNil(past.Logs)
	s.Empty(past.Logs)
	s.Equal(120, past.Total)
}

func (s *ReviewSuite) TestListLogsFilters() {
	s.addLog("L1", "u1", models.LogMissingFields, t0)
	s.addLog("L2", "u2", models.LogDataMismatch, t0.Add(time.Minute))
	_, err := s.review.ResolveLog(s.ctx, "L1", "", "admin@example.com")
	s.Require().NoError(err)

	page, err := s.review.ListLogs(s.ctx, models.LogFilter{Status: models.LogStatusUnresolved}, 0)
	s.Require().NoError(err)
	s.Require().Len(page.Logs, 1)
	s.Equal("L2", page.Logs[0].ID)

	page, err = s.review.ListLogs(s.ctx, models.LogFilter{Type: models.LogMissingFields}, 0)
	s.Require().NoError(err)
	s.Require().Len(page.Logs, 1)
	s.Equal("L1", page.Logs[0].ID)
}

func (s *ReviewSuite) TestUserLogs() {
	u := user("u1", "Ada", "")
	u.Suspend(t0, week, "missing_fields: email")
	s.Require().NoError(s.stores.users.Create(s.ctx, u))
	s.addLog("L1", "u1", models.LogMissingFields, t0)
	s.addLog("L2", "u2", models.LogMissingFields, t0)

	got, err := s.review.UserLogs(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal("Ada", got.UserName)
	s.True(got.IsSuspended)
	s.Require().Len(got.Logs, 1)
	s.Equal("L1", got.Logs[0].ID)
}

func (s *ReviewSuite) TestUserLogsForDeletedAccount() {
	s.addLog("L1", "gone", models.LogAccountDeleted, t0)

	got, err := s.review.UserLogs(s.ctx, "gone")
	s.Require().NoError(err)
	s.Equal("gone@example.com", got.UserEmail)
	s.False(got.IsSuspended)
	s.Len(got.Logs, 1)

	_, err = s.review.UserLogs(s.ctx, "never-existed")
	s.ErrorIs(err, ErrUserNotFound)
}

func (s *ReviewSuite) TestDeletedAccounts() {
	_, err := s.stores.deleted.Record(s.ctx, &models.DeletedAccountRecord{UserID: "u1", Reason: expiryReason, DeletedAt: t0})
	s.Require().NoError(err)

	recs, err := s.review.DeletedAccounts(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Equal("u1", recs[0].UserID)
}

func (s *ReviewSuite) TestExportCSV() {
	s.addLog("L1", "u1", models.LogMissingFields, t0)
	s.Require().NoError(s.stores.logs.Upsert(s.ctx, models.InconsistencyLog{
		ID:        "L2",
		UserID:    "u2",
		UserEmail: "bob@example.com",
		UserName:  "Bob, Jr.",
		Type:      models.LogDataMismatch,
		Details: models.LogDetails{Inconsistencies: []models.Inconsistency{
			{Field: "name", Expected: "Bob", Actual: "Bob, Jr."},
		}},
		Timestamp: t0.Add(time.Minute),
	}))
	_, err := s.review.ResolveLog(s.ctx, "L1", "fixed manually", "admin@example.com")
	s.Require().NoError(err)

	var buf bytes.Buffer
	n, err := s.review.ExportCSV(s.ctx, models.LogFilter{}, &buf)
	s.Require().NoError(err)
	s.Equal(2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal(csvHeader, rows[0])

	s.Equal("L2", rows[1][0])
	s.Equal("Bob, Jr.", rows[1][3])
	s.Equal(`name: expected "Bob", got "Bob, Jr."`, rows[1][5])
	s.Equal("false", rows[1][7])
	s.Empty(rows[1][8])

	s.Equal("L1", rows[2][0])
	s.Equal("missing: email", rows[2][5])
	s.Equal(t0.Format(time.RFC3339), rows[2][6])
	s.Equal("true", rows[2][7])
	s.Equal(s.now.Format(time.RFC3339), rows[2][8])
	s.Equal("admin@example.com", rows[2][9])
	s.Equal("fixed manually", rows[2][10])
}

func (s *ReviewSuite) TestExportCSVRespectsFilter() {
	s.addLog("L1", "u1", models.LogMissingFields, t0)
	s.addLog("L2", "u2", models.LogDataMismatch, t0)

	var buf bytes.Buffer
	n, err := s.review.ExportCSV(s.ctx, models.LogFilter{Type: models.LogDataMismatch}, &buf)
	s.Require().NoError(err)
	s.Equal(1, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	s.Require().NoError(err)
	s.Len(rows, 2)
}
