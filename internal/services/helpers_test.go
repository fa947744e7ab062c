package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/folio/backend/internal/models"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

const week = 7 * 24 * time.Hour

type memStores struct {
	users   *MemoryUserStore
	logs    *MemoryLogStore
	notes   *MemoryNotificationStore
	deleted *MemoryDeletedAccountStore
}

func newMemStores(t *testing.T) memStores {
	t.Helper()
	users, err := NewMemoryUserStore(nil)
	require.NoError(t, err)
	logs, err := NewMemoryLogStore(nil)
	require.NoError(t, err)
	notes, err := NewMemoryNotificationStore(nil)
	require.NoError(t, err)
	deleted, err := NewMemoryDeletedAccountStore(nil)
	require.NoError(t, err)
	return memStores{users: users, logs: logs, notes: notes, deleted: deleted}
}

func user(id, name, email string) *models.UserRecord {
	return &models.UserRecord{UserID: id, Name: name, Email: email, CreatedAt: t0, UpdatedAt: t0}
}

func authRec(id, displayName, email string) models.AuthRecord {
	return models.AuthRecord{UID: id, DisplayName: displayName, Email: email}
}

// conflictOnceStore simulates a concurrent writer landing between a read and the first Update.
type conflictOnceStore struct {
	UserStore
	mu    sync.Mutex
	fired bool
}

func (s *conflictOnceStore) Update(ctx context.Context, u *models.UserRecord) error {
	s.mu.Lock()
	first := !s.fired
	s.fired = true
	s.mu.Unlock()

	if first {
		cur, err := s.UserStore.Get(ctx, u.UserID)
		if err != nil {
			return err
		}
		cur.UpdatedAt = cur.UpdatedAt.Add(time.Second)
		if err := s.UserStore.Update(ctx, cur); err != nil {
			return err
		}
	}
	return s.UserStore.Update(ctx, u)
}

// alwaysConflictStore never accepts a write.
type alwaysConflictStore struct {
	UserStore
}

func (s *alwaysConflictStore) Update(context.Context, *models.UserRecord) error {
	return ErrVersionConflict
}

type fakeArchiver struct {
	mu    sync.Mutex
	fail  bool
	calls []string
}

func (a *fakeArchiver) Archive(_ context.Context, rec *models.DeletedAccountRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return "", errors.New("bucket unavailable")
	}
	a.calls = append(a.calls, rec.UserID)
	return "mem://deleted-accounts/" + rec.UserID + ".json", nil
}

type fakePurger struct {
	mu     sync.Mutex
	purged []string
}

func (p *fakePurger) Purge(_ context.Context, userID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, userID)
	return 2, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []models.Notification
}

func (m *fakeMailer) SendLowContentEmail(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, *n)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
