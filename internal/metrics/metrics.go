package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the consistency workflow.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	UsersChecked         prometheus.Counter
	UsersSuspended       prometheus.Counter
	UsersRestored        *prometheus.CounterVec
	AccountsDeleted      prometheus.Counter
	LogsCreated          *prometheus.CounterVec
	LogsResolved         prometheus.Counter
	NotificationsCreated prometheus.Counter
	JobRuns              *prometheus.CounterVec
	JobDuration          *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in main.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UsersChecked: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_consistency_users_checked_total",
			Help: "Users validated by the consistency checker",
		}),
		UsersSuspended: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_consistency_users_suspended_total",
			Help: "Accounts suspended after an anomaly was detected",
		}),
		UsersRestored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_consistency_users_restored_total",
			Help: "Suspended accounts restored, by source",
		}, []string{"source"}),
		AccountsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_consistency_accounts_deleted_total",
			Help: "Accounts deleted after their grace period expired",
		}),
		LogsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_consistency_logs_created_total",
			Help: "Inconsistency logs written, by type",
		}, []string{"type"}),
		LogsResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_consistency_logs_resolved_total",
			Help: "Inconsistency logs resolved",
		}),
		NotificationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "folio_notifications_created_total",
			Help: "Low-content notifications created",
		}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_job_runs_total",
			Help: "Background job executions, by job and outcome",
		}, []string{"job", "outcome"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_job_duration_seconds",
			Help:    "Background job duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *Metrics) IncUsersChecked() {
	if m != nil {
		m.UsersChecked.Inc()
	}
}

func (m *Metrics) IncUsersSuspended() {
	if m != nil {
		m.UsersSuspended.Inc()
	}
}

func (m *Metrics) IncUsersRestored(source string) {
	if m != nil {
		m.UsersRestored.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncAccountsDeleted() {
	if m != nil {
		m.AccountsDeleted.Inc()
	}
}

func (m *Metrics) IncLogsCreated(typ string) {
	if m != nil {
		m.LogsCreated.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) IncLogsResolved(n int) {
	if m != nil && n > 0 {
		m.LogsResolved.Add(float64(n))
	}
}

func (m *Metrics) IncNotificationsCreated() {
	if m != nil {
		m.NotificationsCreated.Inc()
	}
}

func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.JobRuns.WithLabelValues(job, outcome).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}
