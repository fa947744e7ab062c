package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/folio/backend/internal/config"
	"github.com/folio/backend/internal/middleware"
	"github.com/folio/backend/internal/models"
)

func newLocalApp(t *testing.T, dataDir string) *App {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = dataDir

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNewRegistersJobs(t *testing.T) {
	a := newLocalApp(t, "")
	assert.Equal(t, []string{JobConsistencyCheck, JobExpirySweep, JobContentCheck}, a.Runner.Names())
	assert.IsType(t, &middleware.JWTVerifier{}, a.Verifier)
}

func TestLocalModeEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := newLocalApp(t, dir)

	require.NoError(t, a.Stores.Users.Create(ctx, &models.UserRecord{UserID: "u1", Name: "Ada", CreatedAt: time.Now().UTC()}))
	require.NoError(t, a.Runner.RunOnce(ctx, JobConsistencyCheck))

	u, err := a.Stores.Users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.IsSuspended)
	assert.Equal(t, "missing_fields: email", u.SuspensionReason)

	tok, err := a.Verifier.(*middleware.JWTVerifier).Issue(middleware.Identity{UserID: "root", Admin: true}, time.Minute)
	require.NoError(t, err)

	router := a.Router()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/inconsistency-stats", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"suspendedUsers":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	// The snapshot on disk survives a restart.
	reopened, err := MemoryStores(dir)
	require.NoError(t, err)
	u, err = reopened.Users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.IsSuspended)
	logs, err := reopened.Logs.List(ctx, models.LogFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestLocalContentCheckUsesConfiguredCounts(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = ""
	for i := range cfg.Notifications.Sections {
		cfg.Notifications.Sections[i].LocalCount = 5
	}
	cfg.Notifications.Sections[0].LocalCount = 1

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	res, err := a.Dispatcher.CheckContent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.SectionCount{{DisplayName: "Skills", Count: 1, Needed: 2}}, res.Sections)
}

func TestRunOnceUnknownJob(t *testing.T) {
	a := newLocalApp(t, "")
	assert.Error(t, a.Runner.RunOnce(context.Background(), "nope"))
}
