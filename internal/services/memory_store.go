package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/folio/backend/internal/models"
	"github.com/folio/backend/internal/storage"
)

// In-memory stores back local development (optionally snapshotted to DATA_DIR through a
// JSONStore) and the tests. They honour the same version and append-only rules as Mongo.

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*models.UserRecord
	disk  *storage.JSONStore
}

func NewMemoryUserStore(disk *storage.JSONStore) (*MemoryUserStore, error) {
	s := &MemoryUserStore{users: make(map[string]*models.UserRecord), disk: disk}
	if err := disk.Load(&s.users); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryUserStore) Get(_ context.Context, userID string) (*models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryUserStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryUserStore) ListExpired(_ context.Context, now time.Time) ([]*models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.UserRecord, 0)
	for _, u := range s.users {
		if u.Expired(now) {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryUserStore) CountSuspended(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, u := range s.users {
		if u.IsSuspended {
			n++
		}
	}
	return n, nil
}

func (s *MemoryUserStore) Create(_ context.Context, u *models.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.UserID]; exists {
		return ErrUserExists
	}
	u.Version = 1
	s.users[u.UserID] = u.Clone()
	return s.disk.Save(s.users)
}

func (s *MemoryUserStore) Update(_ context.Context, u *models.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.UserID]
	if !ok {
		return ErrUserNotFound
	}
	if cur.Version != u.Version {
		return ErrVersionConflict
	}
	u.Version++
	s.users[u.UserID] = u.Clone()
	return s.disk.Save(s.users)
}

func (s *MemoryUserStore) Delete(_ context.Context, userID string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if cur.Version != version {
		return ErrVersionConflict
	}
	delete(s.users, userID)
	return s.disk.Save(s.users)
}

type MemoryLogStore struct {
	mu   sync.RWMutex
	logs map[string]*models.InconsistencyLog
	disk *storage.JSONStore
}

func NewMemoryLogStore(disk *storage.JSONStore) (*MemoryLogStore, error) {
	s := &MemoryLogStore{logs: make(map[string]*models.InconsistencyLog), disk: disk}
	if err := disk.Load(&s.logs); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryLogStore) Upsert(_ context.Context, logs ...models.InconsistencyLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range logs {
		if _, exists := s.logs[logs[i].ID]; exists {
			continue
		}
		l := logs[i]
		s.logs[l.ID] = &l
	}
	return s.disk.Save(s.logs)
}

func (s *MemoryLogStore) Get(_ context.Context, id string) (*models.InconsistencyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.logs[id]
	if !ok {
		return nil, ErrLogNotFound
	}
	out := *l
	return &out, nil
}

func (s *MemoryLogStore) List(_ context.Context, filter models.LogFilter) ([]models.InconsistencyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.InconsistencyLog, 0)
	for _, l := range s.logs {
		if filter.Matches(l) {
			out = append(out, *l)
		}
	}
	sortLogsNewestFirst(out)
	return out, nil
}

func (s *MemoryLogStore) Resolve(_ context.Context, id string, at time.Time, notes, actor string) (*models.InconsistencyLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[id]
	if !ok {
		return nil, ErrLogNotFound
	}
	l.Resolve(at, notes, actor)
	out := *l
	return &out, s.disk.Save(s.logs)
}

func (s *MemoryLogStore) ResolveForUser(_ context.Context, userID string, at time.Time, notes, actor string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.logs {
		if l.UserID == userID && !l.Resolved {
			l.Resolve(at, notes, actor)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.disk.Save(s.logs)
}

func (s *MemoryLogStore) Stats(_ context.Context) (*models.InconsistencyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &models.InconsistencyStats{ByType: make(map[models.LogType]int64)}
	for _, l := range s.logs {
		st.TotalLogs++
		if !l.Resolved {
			st.UnresolvedLogs++
		}
		st.ByType[l.Type]++
	}
	return st, nil
}

type MemoryNotificationStore struct {
	mu    sync.RWMutex
	notes map[string]*models.Notification
	disk  *storage.JSONStore
}

func NewMemoryNotificationStore(disk *storage.JSONStore) (*MemoryNotificationStore, error) {
	s := &MemoryNotificationStore{notes: make(map[string]*models.Notification), disk: disk}
	if err := disk.Load(&s.notes); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryNotificationStore) Insert(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.DedupKey != "" && !n.Read {
		for _, cur := range s.notes {
			if !cur.Read && cur.DedupKey == n.DedupKey && cur.Recipient.Email == n.Recipient.Email {
				return ErrDuplicateNotification
			}
		}
	}
	cp := *n
	s.notes[n.ID] = &cp
	return s.disk.Save(s.notes)
}

func (s *MemoryNotificationStore) Update(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[n.ID]; !ok {
		return ErrNotificationNotFound
	}
	cp := *n
	s.notes[n.ID] = &cp
	return s.disk.Save(s.notes)
}

func (s *MemoryNotificationStore) Get(_ context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryNotificationStore) FindUnread(_ context.Context, dedupKey, recipientEmail string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Notification
	for _, n := range s.notes {
		if n.Read || n.DedupKey != dedupKey || n.Recipient.Email != recipientEmail {
			continue
		}
		if found == nil || n.CreatedAt.After(found.CreatedAt) {
			found = n
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (s *MemoryNotificationStore) List(_ context.Context, status models.NotificationStatusFilter) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Notification, 0, len(s.notes))
	for _, n := range s.notes {
		switch status {
		case models.NotificationStatusRead:
			if !n.Read {
				continue
			}
		case models.NotificationStatusUnread:
			if n.Read {
				continue
			}
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryNotificationStore) MarkRead(_ context.Context, id string, at time.Time) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	n.MarkRead(at)
	cp := *n
	return &cp, s.disk.Save(s.notes)
}

func (s *MemoryNotificationStore) MarkAllRead(_ context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for _, n := range s.notes {
		if !n.Read {
			n.MarkRead(at)
			changed++
		}
	}
	return changed, s.disk.Save(s.notes)
}

func (s *MemoryNotificationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return ErrNotificationNotFound
	}
	delete(s.notes, id)
	return s.disk.Save(s.notes)
}

func (s *MemoryNotificationStore) Stats(_ context.Context) (*models.NotificationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &models.NotificationStats{}
	for _, n := range s.notes {
		st.Total++
		if !n.Read {
			st.Unread++
		}
	}
	return st, nil
}

type MemoryDeletedAccountStore struct {
	mu      sync.RWMutex
	records map[string]*models.DeletedAccountRecord
	disk    *storage.JSONStore
}

func NewMemoryDeletedAccountStore(disk *storage.JSONStore) (*MemoryDeletedAccountStore, error) {
	s := &MemoryDeletedAccountStore{records: make(map[string]*models.DeletedAccountRecord), disk: disk}
	if err := disk.Load(&s.records); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryDeletedAccountStore) Record(_ context.Context, rec *models.DeletedAccountRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.UserID]; exists {
		return false, nil
	}
	cp := *rec
	s.records[rec.UserID] = &cp
	return true, s.disk.Save(s.records)
}

func (s *MemoryDeletedAccountStore) List(_ context.Context) ([]models.DeletedAccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DeletedAccountRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(out[j].DeletedAt) })
	return out, nil
}

// MemoryContentCounter serves fixed section counts.
type MemoryContentCounter struct {
	mu     sync.RWMutex
	counts map[string]int64
}

func NewMemoryContentCounter(counts map[string]int64) *MemoryContentCounter {
	c := &MemoryContentCounter{counts: make(map[string]int64, len(counts))}
	for k, v := range counts {
		c.counts[k] = v
	}
	return c
}

func (c *MemoryContentCounter) Set(collection string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[collection] = n
}

func (c *MemoryContentCounter) Count(_ context.Context, collection string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[collection], nil
}

// MemoryAuthDirectory is a static identity provider.
type MemoryAuthDirectory struct {
	mu      sync.RWMutex
	records map[string]models.AuthRecord
}

func NewMemoryAuthDirectory(records ...models.AuthRecord) *MemoryAuthDirectory {
	d := &MemoryAuthDirectory{records: make(map[string]models.AuthRecord, len(records))}
	for _, r := range records {
		d.records[r.UID] = r
	}
	return d
}

func (d *MemoryAuthDirectory) Put(r models.AuthRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[r.UID] = r
}

func (d *MemoryAuthDirectory) Remove(uid string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, uid)
}

func (d *MemoryAuthDirectory) Lookup(_ context.Context, userID string) (*models.AuthRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.records[userID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func sortLogsNewestFirst(logs []models.InconsistencyLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].Timestamp.Equal(logs[j].Timestamp) {
			return logs[i].ID < logs[j].ID
		}
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
}
