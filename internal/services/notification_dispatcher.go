package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/folio/backend/internal/config"
	"github.com/folio/backend/internal/metrics"
	"github.com/folio/backend/internal/models"
)

// LowContentKey dedups the low-content alert: one unread copy per recipient.
const LowContentKey = "low_content"

type NotificationDispatcher struct {
	store     NotificationStore
	counter   ContentCounter
	mailer    Mailer
	sections  []config.Section
	threshold int64
	recipient models.Recipient
	now       func() time.Time
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// NewNotificationDispatcher accepts a nil mailer; notifications are then stored with emailed=false.
func NewNotificationDispatcher(store NotificationStore, counter ContentCounter, mailer Mailer, cfg config.NotificationsConfig, recipient models.Recipient, log *zap.Logger, m *metrics.Metrics) *NotificationDispatcher {
	return &NotificationDispatcher{
		store:     store,
		counter:   counter,
		mailer:    mailer,
		sections:  cfg.Sections,
		threshold: cfg.Threshold,
		recipient: recipient,
		now:       time.Now,
		log:       log.Named("notifications"),
		metrics:   m,
	}
}

// LowSections counts every tracked section concurrently and returns those under the
// threshold, in configuration order.
func (d *NotificationDispatcher) LowSections(ctx context.Context) ([]models.SectionCount, error) {
	counts := make([]int64, len(d.sections))
	g, gctx := errgroup.WithContext(ctx)
	for i, sec := range d.sections {
		i, sec := i, sec
		g.Go(func() error {
			n, err := d.counter.Count(gctx, sec.Collection)
			if err != nil {
				return fmt.Errorf("count %s: %w", sec.Collection, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.SectionCount, 0)
	for i, sec := range d.sections {
		if counts[i] < d.threshold {
			out = append(out, models.SectionCount{
				DisplayName: sec.DisplayName,
				Count:       counts[i],
				Needed:      d.threshold - counts[i],
			})
		}
	}
	return out, nil
}

// CheckContent is the single routine behind the scheduled job and the manual trigger.
// An unread alert for the same recipient is refreshed instead of duplicated.
func (d *NotificationDispatcher) CheckContent(ctx context.Context) (*models.ContentCheckResult, error) {
	sections, err := d.LowSections(ctx)
	if err != nil {
		return nil, err
	}
	res := &models.ContentCheckResult{Sections: sections}
	if len(sections) == 0 {
		return res, nil
	}

	now := d.now().UTC()
	existing, err := d.store.FindUnread(ctx, LowContentKey, d.recipient.Email)
	if err != nil {
		return nil, fmt.Errorf("find unread: %w", err)
	}
	if existing != nil {
		return d.refresh(ctx, res, existing, now)
	}

	n := &models.Notification{
		ID:        uuid.NewString(),
		Recipient: d.recipient,
		Sections:  sections,
		DedupKey:  LowContentKey,
		SentAt:    now,
		CreatedAt: now,
	}
	err = d.store.Insert(ctx, n)
	if errors.Is(err, ErrDuplicateNotification) {
		// A concurrent check inserted first; fold into its copy.
		existing, err = d.store.FindUnread(ctx, LowContentKey, d.recipient.Email)
		if err != nil {
			return nil, fmt.Errorf("find unread: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("insert notification: %w", ErrDuplicateNotification)
		}
		return d.refresh(ctx, res, existing, now)
	}
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	if n.Emailed = d.email(ctx, n); n.Emailed {
		if err := d.store.Update(ctx, n); err != nil {
			d.log.Warn("emailed flag not saved", zap.String("id", n.ID), zap.Error(err))
		}
	}
	d.metrics.IncNotificationsCreated()
	d.log.Info("low content notification created",
		zap.String("id", n.ID),
		zap.Int("sections", len(sections)),
		zap.Bool("emailed", n.Emailed))

	res.Notification = n
	res.Created = true
	return res, nil
}

// refresh updates an unread notification in place. It is mailed again only when the set
// of low sections changed.
func (d *NotificationDispatcher) refresh(ctx context.Context, res *models.ContentCheckResult, n *models.Notification, now time.Time) (*models.ContentCheckResult, error) {
	changed := !slices.Equal(n.Sections, res.Sections)
	n.Sections = res.Sections
	n.SentAt = now
	if changed {
		n.Emailed = d.email(ctx, n)
	}
	if err := d.store.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("refresh notification: %w", err)
	}
	res.Notification = n
	res.Refreshed = true
	return res, nil
}

func (d *NotificationDispatcher) email(ctx context.Context, n *models.Notification) bool {
	if d.mailer == nil {
		return false
	}
	if err := d.mailer.SendLowContentEmail(ctx, n); err != nil {
		d.log.Warn("low content email failed", zap.String("id", n.ID), zap.Error(err))
		return false
	}
	return true
}

func (d *NotificationDispatcher) List(ctx context.Context, status models.NotificationStatusFilter) (*models.NotificationList, error) {
	notes, err := d.store.List(ctx, status)
	if err != nil {
		return nil, err
	}
	st, err := d.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &models.NotificationList{Notifications: notes, Unread: st.Unread}, nil
}

func (d *NotificationDispatcher) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	return d.store.MarkRead(ctx, id, d.now())
}

func (d *NotificationDispatcher) MarkAllRead(ctx context.Context) (int64, error) {
	return d.store.MarkAllRead(ctx, d.now())
}

func (d *NotificationDispatcher) Delete(ctx context.Context, id string) error {
	return d.store.Delete(ctx, id)
}

func (d *NotificationDispatcher) Stats(ctx context.Context) (*models.NotificationStats, error) {
	return d.store.Stats(ctx)
}
