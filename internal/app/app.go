// Package app assembles stores, services and jobs from configuration. The server and the
// worker build the same App so scheduled and manual runs share one code path.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/folio/backend/internal/config"
	"github.com/folio/backend/internal/handlers"
	"github.com/folio/backend/internal/jobs"
	"github.com/folio/backend/internal/lock"
	"github.com/folio/backend/internal/metrics"
	"github.com/folio/backend/internal/middleware"
	"github.com/folio/backend/internal/models"
	"github.com/folio/backend/internal/services"
	"github.com/folio/backend/internal/storage"
)

const (
	JobConsistencyCheck = "consistency-check"
	JobExpirySweep      = "expiry-sweep"
	JobContentCheck     = "content-check"
)

// Stores is the persistence layer App runs on.
type Stores struct {
	Users         services.UserStore
	Logs          services.LogStore
	Notifications services.NotificationStore
	Deleted       services.DeletedAccountStore
	Content       services.ContentCounter
	Purger        services.AccountPurger
}

type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Stores     Stores
	Checker    *services.ConsistencyChecker
	Suspension *services.SuspensionService
	Sweeper    *services.ExpirySweeper
	Dispatcher *services.NotificationDispatcher
	Review     *services.AdminReview
	Runner     *jobs.Runner
	Verifier   middleware.TokenVerifier

	closers []func(context.Context) error
}

// New connects every backend named in cfg. Mongo, Firebase, Redis, Cloud Storage and
// SendGrid are each optional; without them the App runs on local substitutes.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	if err := a.openStores(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	auth, verifier, err := a.openAuth(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Verifier = verifier

	var archiver services.SnapshotArchiver
	if cfg.ArchiveBucket != "" {
		gcs, err := services.NewGCSSnapshotArchiver(ctx, cfg.ArchiveBucket, a.googleOptions()...)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return gcs.Close() })
		archiver = gcs
	}

	var mailer services.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer = services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.NotifyFromEmail)
	} else {
		log.Warn("SENDGRID_API_KEY not set, notifications will not be emailed")
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	s := a.Stores
	required := cfg.Consistency.RequiredFields
	a.Checker = services.NewConsistencyChecker(s.Users, s.Logs, auth, required, cfg.Consistency.GracePeriod(), log, a.Metrics)
	a.Suspension = services.NewSuspensionService(s.Users, s.Logs, auth, required, log, a.Metrics)
	a.Sweeper = services.NewExpirySweeper(s.Users, s.Logs, s.Deleted, archiver, s.Purger, log, a.Metrics)
	a.Dispatcher = services.NewNotificationDispatcher(s.Notifications, s.Content, mailer, cfg.Notifications,
		models.Recipient{Email: cfg.NotifyToEmail, Name: cfg.NotifyToName}, log, a.Metrics)
	a.Review = services.NewAdminReview(s.Users, s.Logs, s.Deleted, log, a.Metrics)

	a.Runner = jobs.NewRunner(locker, log, a.Metrics)
	a.Runner.Add(jobs.Job{
		Name:       JobConsistencyCheck,
		Interval:   cfg.Consistency.CheckInterval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			_, err := a.Checker.RunAll(ctx)
			return err
		},
	})
	a.Runner.Add(jobs.Job{
		Name:     JobExpirySweep,
		Interval: cfg.Consistency.SweepInterval,
		Run: func(ctx context.Context) error {
			_, err := a.Sweeper.Sweep(ctx)
			return err
		},
	})
	a.Runner.Add(jobs.Job{
		Name:     JobContentCheck,
		Interval: cfg.Notifications.CheckInterval,
		Run: func(ctx context.Context) error {
			_, err := a.Dispatcher.CheckContent(ctx)
			return err
		},
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	if cfg.MongoURI != "" {
		client, err := services.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Disconnect)
		db := client.Database(cfg.MongoDB)
		if err := services.EnsureIndexes(ctx, db); err != nil {
			a.Log.Warn("index creation failed", zap.Error(err))
		}
		a.Stores = Stores{
			Users:         services.NewMongoUserStore(db),
			Logs:          services.NewMongoLogStore(db),
			Notifications: services.NewMongoNotificationStore(db),
			Deleted:       services.NewMongoDeletedAccountStore(db),
			Content:       services.NewMongoContentCounter(db),
			Purger:        services.NewMongoAccountPurger(db, cfg.Consistency.OwnedCollections),
		}
		a.Log.Info("using mongo stores", zap.String("db", cfg.MongoDB))
		return nil
	}

	stores, err := MemoryStores(cfg.DataDir)
	if err != nil {
		return err
	}
	a.Stores = *stores
	a.Stores.Content = services.NewMemoryContentCounter(cfg.Notifications.LocalCounts())
	a.Log.Warn("MONGO_URI not set, using in-memory stores", zap.String("data_dir", cfg.DataDir))
	a.Log.Warn("content checks use the local_count of each notification section",
		zap.Any("counts", cfg.Notifications.LocalCounts()))
	return nil
}

// MemoryStores builds in-memory stores snapshotted under dataDir. An empty dataDir keeps
// everything in memory only. Content counts start at zero.
func MemoryStores(dataDir string) (*Stores, error) {
	open := func(name string) (*storage.JSONStore, error) {
		return storage.NewJSONStore(dataDir, name)
	}
	usersDisk, err := open("users.json")
	if err != nil {
		return nil, err
	}
	logsDisk, err := open("inconsistency_logs.json")
	if err != nil {
		return nil, err
	}
	notesDisk, err := open("notifications.json")
	if err != nil {
		return nil, err
	}
	deletedDisk, err := open("deleted_accounts.json")
	if err != nil {
		return nil, err
	}

	users, err := services.NewMemoryUserStore(usersDisk)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	logs, err := services.NewMemoryLogStore(logsDisk)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	notes, err := services.NewMemoryNotificationStore(notesDisk)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	deleted, err := services.NewMemoryDeletedAccountStore(deletedDisk)
	if err != nil {
		return nil, fmt.Errorf("load deleted accounts: %w", err)
	}
	return &Stores{
		Users:         users,
		Logs:          logs,
		Notifications: notes,
		Deleted:       deleted,
		Content:       services.NewMemoryContentCounter(nil),
	}, nil
}

func (a *App) googleOptions() []option.ClientOption {
	if a.Config.FirebaseCreds == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsJSON([]byte(a.Config.FirebaseCreds))}
}

func (a *App) openAuth(ctx context.Context) (services.AuthDirectory, middleware.TokenVerifier, error) {
	cfg := a.Config
	if cfg.FirebaseProject == "" {
		a.Log.Warn("FIREBASE_PROJECT_ID not set, using HS256 tokens and the user store as identity source")
		return services.NewRecordAuthDirectory(a.Stores.Users), middleware.NewJWTVerifier(cfg.JWTSecret), nil
	}
	client, err := middleware.NewFirebaseAuthClient(ctx, middleware.FirebaseAuthConfig{
		ProjectID:       cfg.FirebaseProject,
		CredentialsJSON: cfg.FirebaseCreds,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("firebase auth: %w", err)
	}
	return services.NewFirebaseAuthDirectory(client), middleware.NewFirebaseVerifier(client), nil
}

func (a *App) openLocker(ctx context.Context) (lock.Locker, error) {
	if a.Config.RedisURL == "" {
		return lock.NewLocalLocker(), nil
	}
	client, err := lock.NewRedisClient(ctx, a.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return lock.NewRedisLocker(client, "folio:lock:"), nil
}

// Router builds the HTTP API on top of the App's services.
func (a *App) Router() http.Handler {
	timeout := a.Config.RequestTimeout()
	return handlers.NewRouter(handlers.RouterConfig{
		Verifier:      a.Verifier,
		AdminEmails:   a.Config.AdminEmails,
		Consistency:   handlers.NewConsistencyHandler(a.Checker, a.Review, a.Suspension, timeout, a.Log),
		Profile:       handlers.NewProfileHandler(a.Suspension, timeout, a.Log),
		Notifications: handlers.NewNotificationHandler(a.Dispatcher, timeout, a.Log),
		Metrics:       promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		Log:           a.Log,
	})
}

// Close releases backends in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
