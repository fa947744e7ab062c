package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/folio/backend/internal/config"
	"github.com/folio/backend/internal/middleware"
	"github.com/folio/backend/internal/models"
	"github.com/folio/backend/internal/services"
)

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

type RouterSuite struct {
	suite.Suite
	ctx        context.Context
	users      *services.MemoryUserStore
	logs       *services.MemoryLogStore
	auth       *services.MemoryAuthDirectory
	handler    http.Handler
	userToken  string
	adminToken string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	log := zap.NewNop()

	var err error
	s.users, err = services.NewMemoryUserStore(nil)
	s.Require().NoError(err)
	s.logs, err = services.NewMemoryLogStore(nil)
	s.Require().NoError(err)
	notes, err := services.NewMemoryNotificationStore(nil)
	s.Require().NoError(err)
	deleted, err := services.NewMemoryDeletedAccountStore(nil)
	s.Require().NoError(err)
	s.auth = services.NewMemoryAuthDirectory()

	required := []string{"name", "email"}
	checker := services.NewConsistencyChecker(s.users, s.logs, s.auth, required, 7*24*time.Hour, log, nil)
	suspension := services.NewSuspensionService(s.users, s.logs, s.auth, required, log, nil)
	review := services.NewAdminReview(s.users, s.logs, deleted, log, nil)
	counter := services.NewMemoryContentCounter(map[string]int64{"skills": 1, "projects": 4, "experiences": 4})
	dispatcher := services.NewNotificationDispatcher(notes, counter, nil, config.Defaults().Notifications,
		models.Recipient{Email: "owner@example.com"}, log, nil)

	verifier := middleware.NewJWTVerifier("router-test-secret")
	s.userToken, err = verifier.Issue(middleware.Identity{UserID: "u1", Email: "ada@example.com", Name: "Ada"}, time.Hour)
	s.Require().NoError(err)
	s.adminToken, err = verifier.Issue(middleware.Identity{UserID: "admin-1", Email: "admin@example.com"}, time.Hour)
	s.Require().NoError(err)

	timeout := 5 * time.Second
	s.handler = NewRouter(RouterConfig{
		Verifier:      verifier,
		AdminEmails:   []string{"admin@example.com"},
		Consistency:   NewConsistencyHandler(checker, review, suspension, timeout, log),
		Profile:       NewProfileHandler(suspension, timeout, log),
		Notifications: NewNotificationHandler(dispatcher, timeout, log),
		Log:           log,
	})
}

func (s *RouterSuite) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder) envelope {
	var env envelope
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

// suspendedUser seeds u1 suspended for a missing email, with one open log.
func (s *RouterSuite) suspendedUser() {
	u := &models.UserRecord{UserID: "u1", Name: "Ada", CreatedAt: time.Now().UTC()}
	u.Suspend(time.Now(), 7*24*time.Hour, "missing_fields: email")
	u.MissingFields = []string{"email"}
	s.Require().NoError(s.users.Create(s.ctx, u))
	s.auth.Put(models.AuthRecord{UID: "u1", DisplayName: "Ada", Email: "ada@example.com"})
	s.Require().NoError(s.logs.Upsert(s.ctx, models.InconsistencyLog{
		ID:        "L1",
		UserID:    "u1",
		UserName:  "Ada",
		Type:      models.LogMissingFields,
		Details:   models.LogDetails{MissingFields: []string{"email"}},
		Timestamp: time.Now().UTC(),
	}))
}

func (s *RouterSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", "", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("OK", rec.Body.String())
}

func (s *RouterSuite) TestAccessControl() {
	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"no token on user route", "/api/auth/profile-status", "", http.StatusUnauthorized},
		{"no token on admin route", "/api/admin/inconsistency-stats", "", http.StatusUnauthorized},
		{"garbage token", "/api/admin/inconsistency-stats", "not-a-jwt", http.StatusUnauthorized},
		{"non-admin", "/api/admin/inconsistency-stats", s.userToken, http.StatusForbidden},
		{"non-admin notifications", "/api/admin/notifications", s.userToken, http.StatusForbidden},
		{"admin", "/api/admin/inconsistency-stats", s.adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodGet, tt.path, tt.token, "")
			s.Equal(tt.want, rec.Code, rec.Body.String())
		})
	}
}

func (s *RouterSuite) TestProfileStatusCreatesRecord() {
	rec := s.do(http.MethodGet, "/api/auth/profile-status", s.userToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var st models.ProfileStatus
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &st))
	s.False(st.IsSuspended)
	s.Equal("ada@example.com", st.UserData.Email)

	_, err := s.users.Get(s.ctx, "u1")
	s.NoError(err)
}

func (s *RouterSuite) TestCompleteProfileRejectsUnknownFields() {
	s.suspendedUser()
	rec := s.do(http.MethodPost, "/api/auth/complete-profile", s.userToken, `{"email":"ada@example.com","isAdmin":true}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Invalid request body", s.decode(rec).Error)
}

func (s *RouterSuite) TestCompleteProfileValidation() {
	s.suspendedUser()
	rec := s.do(http.MethodPost, "/api/auth/complete-profile", s.userToken, `{"email":"   "}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(s.decode(rec).Errors, "email")
}

func (s *RouterSuite) TestCompleteProfileStillIncomplete() {
	s.suspendedUser()
	rec := s.do(http.MethodPost, "/api/auth/complete-profile", s.userToken, `{"email":"other@example.com"}`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	env := s.decode(rec)
	s.False(env.Success)
	var st models.ProfileStatus
	s.Require().NoError(json.Unmarshal(env.Data, &st))
	s.True(st.IsSuspended)
	s.Require().Len(st.Inconsistencies, 1)
	s.Equal("email", st.Inconsistencies[0].Field)
}

func (s *RouterSuite) TestCompleteProfileLiftsSuspension() {
	s.suspendedUser()
	rec := s.do(http.MethodPost, "/api/auth/complete-profile", s.userToken, `{"email":"ada@example.com"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var st models.ProfileStatus
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &st))
	s.False(st.IsSuspended)

	l, err := s.logs.Get(s.ctx, "L1")
	s.Require().NoError(err)
	s.True(l.Resolved)
}

func (s *RouterSuite) TestStats() {
	s.suspendedUser()
	rec := s.do(http.MethodGet, "/api/admin/inconsistency-stats", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var st models.InconsistencyStats
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &st))
	s.Equal(int64(1), st.TotalLogs)
	s.Equal(int64(1), st.UnresolvedLogs)
	s.Equal(int64(1), st.SuspendedUsers)
	s.Len(st.ByType, len(models.LogTypes))
}

func (s *RouterSuite) TestListLogsValidation() {
	for _, q := range []string{"status=bogus", "type=nope", "page=0", "page=x"} {
		rec := s.do(http.MethodGet, "/api/admin/inconsistency-logs?"+q, s.adminToken, "")
		s.Equal(http.StatusBadRequest, rec.Code, q)
	}
}

func (s *RouterSuite) TestListLogs() {
	s.suspendedUser()
	rec := s.do(http.MethodGet, "/api/admin/inconsistency-logs?status=unresolved&type=missing_fields&page=1", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var page models.LogPage
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &page))
	s.Equal(1, page.Total)
	s.Equal(1, page.Page)
	s.Require().Len(page.Logs, 1)
	s.Equal("L1", page.Logs[0].ID)
}

func (s *RouterSuite) TestUserLogsAndResolve() {
	s.suspendedUser()

	rec := s.do(http.MethodGet, "/api/admin/inconsistency-logs/u1", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var ul models.UserLogs
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &ul))
	s.True(ul.IsSuspended)
	s.Len(ul.Logs, 1)

	rec = s.do(http.MethodPost, "/api/admin/inconsistency-logs/L1/resolve", s.adminToken, `{"notes":"fixed manually"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	var l models.InconsistencyLog
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &l))
	s.True(l.Resolved)
	s.Equal("admin@example.com", l.ResolvedBy)
	s.Equal("fixed manually", l.ResolutionNotes)

	u, err := s.users.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(u.IsSuspended)
}

func (s *RouterSuite) TestNotFound() {
	tests := []struct {
		method, path, body, want string
	}{
		{http.MethodGet, "/api/admin/inconsistency-logs/ghost", "", "User not found"},
		{http.MethodPost, "/api/admin/inconsistency-logs/nope/resolve", `{}`, "Log not found"},
		{http.MethodPost, "/api/admin/restore-user/ghost", `{"reason":"checked"}`, "User not found"},
		{http.MethodPost, "/api/admin/notifications/nope/read", "", "Notification not found"},
		{http.MethodDelete, "/api/admin/notifications/nope", "", "Notification not found"},
	}
	for _, tt := range tests {
		s.Run(tt.path, func() {
			rec := s.do(tt.method, tt.path, s.adminToken, tt.body)
			s.Equal(http.StatusNotFound, rec.Code)
			s.Equal(tt.want, s.decode(rec).Error)
		})
	}
}

func (s *RouterSuite) TestRestoreUser() {
	s.suspendedUser()

	rec := s.do(http.MethodPost, "/api/admin/restore-user/u1", s.adminToken, `{}`)
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Reason is required", s.decode(rec).Errors["reason"])

	rec = s.do(http.MethodPost, "/api/admin/restore-user/u1", s.adminToken, `{"reason":"verified manually"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	var out struct {
		UserID      string `json:"userId"`
		IsSuspended bool   `json:"isSuspended"`
	}
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &out))
	s.Equal("u1", out.UserID)
	s.False(out.IsSuspended)

	l, err := s.logs.Get(s.ctx, "L1")
	s.Require().NoError(err)
	s.Equal("restored by admin@example.com: verified manually", l.ResolutionNotes)
}

func (s *RouterSuite) TestRestoreAccountBeingDeleted() {
	s.suspendedUser()
	u, err := s.users.Get(s.ctx, "u1")
	s.Require().NoError(err)
	u.DeletionPending = true
	s.Require().NoError(s.users.Update(s.ctx, u))

	rec := s.do(http.MethodPost, "/api/admin/restore-user/u1", s.adminToken, `{"reason":"verified manually"}`)
	s.Require().Equal(http.StatusConflict, rec.Code)
	s.Equal("Account is being deleted", s.decode(rec).Error)

	u, err = s.users.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(u.IsSuspended)
}

func (s *RouterSuite) TestTriggerCheck() {
	s.Require().NoError(s.users.Create(s.ctx, &models.UserRecord{UserID: "u2", Name: "Bob"}))

	rec := s.do(http.MethodPost, "/api/admin/inconsistency-checks/trigger", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var sum models.CheckSummary
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &sum))
	s.Equal(1, sum.Scanned)
	s.Equal(1, sum.Suspended)

	u, err := s.users.Get(s.ctx, "u2")
	s.Require().NoError(err)
	s.True(u.IsSuspended)
}

func (s *RouterSuite) TestExportLogs() {
	s.suspendedUser()
	rec := s.do(http.MethodGet, "/api/admin/inconsistency-logs/export", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	s.Contains(rec.Header().Get("Content-Disposition"), "attachment;")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	s.Len(lines, 2)
	s.True(strings.HasPrefix(lines[0], "id,userId,userEmail"))
}

func (s *RouterSuite) TestDeletedAccounts() {
	rec := s.do(http.MethodGet, "/api/admin/deleted-accounts", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"accounts":[]}`, string(s.decode(rec).Data))
}

func (s *RouterSuite) TestNotificationFlow() {
	rec := s.do(http.MethodPost, "/api/admin/notifications/trigger-check", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var res models.ContentCheckResult
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &res))
	s.True(res.Created)
	s.Equal([]models.SectionCount{{DisplayName: "Skills", Count: 1, Needed: 2}}, res.Sections)

	rec = s.do(http.MethodGet, "/api/admin/notifications?status=unread", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list models.NotificationList
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &list))
	s.Len(list.Notifications, 1)
	s.Equal(int64(1), list.Unread)

	rec = s.do(http.MethodPost, "/api/admin/notifications/mark-all-read", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"updated":1}`, string(s.decode(rec).Data))

	rec = s.do(http.MethodGet, "/api/admin/notifications/stats", s.adminToken, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var st models.NotificationStats
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &st))
	s.Equal(int64(1), st.Total)
	s.Zero(st.Unread)

	rec = s.do(http.MethodDelete, "/api/admin/notifications/"+res.Notification.ID, s.adminToken, "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestNotificationListValidation() {
	rec := s.do(http.MethodGet, "/api/admin/notifications?status=archived", s.adminToken, "")
	s.Equal(http.StatusBadRequest, rec.Code)
}
