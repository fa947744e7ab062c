package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appMiddleware "github.com/folio/backend/internal/middleware"
)

type RouterConfig struct {
	Verifier      appMiddleware.TokenVerifier
	AdminEmails   []string
	Consistency   *ConsistencyHandler
	Profile       *ProfileHandler
	Notifications *NotificationHandler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Log     *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appMiddleware.RequestLogger(cfg.Log.Named("http")))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(appMiddleware.Authenticate(cfg.Verifier))

		r.Route("/auth", func(r chi.Router) {
			r.Get("/profile-status", cfg.Profile.ProfileStatus)
			r.Post("/complete-profile", cfg.Profile.CompleteProfile)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(appMiddleware.RequireAdmin(cfg.AdminEmails))

			c := cfg.Consistency
			r.Get("/inconsistency-stats", c.Stats)
			r.Route("/inconsistency-logs", func(r chi.Router) {
				r.Get("/", c.ListLogs)
				r.Get("/export", c.ExportLogs)
				r.Get("/{id}", c.UserLogs)
				r.Post("/{id}/resolve", c.ResolveLog)
			})
			r.Post("/inconsistency-checks/trigger", c.TriggerCheck)
			r.Get("/deleted-accounts", c.DeletedAccounts)
			r.Post("/restore-user/{userId}", c.RestoreUser)

			n := cfg.Notifications
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", n.List)
				r.Get("/stats", n.Stats)
				r.Post("/mark-all-read", n.MarkAllRead)
				r.Post("/trigger-check", n.TriggerCheck)
				r.Post("/{id}/read", n.MarkRead)
				r.Delete("/{id}", n.Delete)
			})
		})
	})

	return r
}
