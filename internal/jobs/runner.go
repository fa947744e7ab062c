// Package jobs runs the periodic consistency, expiry and notification passes.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/folio/backend/internal/lock"
	"github.com/folio/backend/internal/metrics"
)

// ErrUnknownJob is returned by RunOnce for an unregistered name.
var ErrUnknownJob = errors.New("unknown job")

type Job struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Runner schedules jobs on fixed intervals. Every execution, scheduled or manual, takes
// the job's lock first, so one replica runs a given job at a time.
type Runner struct {
	locker  lock.Locker
	log     *zap.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	jobs map[string]Job
	// order keeps Start deterministic.
	order []string
}

func NewRunner(locker lock.Locker, log *zap.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		locker:  locker,
		log:     log.Named("jobs"),
		metrics: m,
		jobs:    make(map[string]Job),
	}
}

// Add registers j, replacing a job of the same name. A non-positive interval means hourly.
func (r *Runner) Add(j Job) {
	if j.Interval <= 0 {
		j.Interval = time.Hour
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[j.Name]; !exists {
		r.order = append(r.order, j.Name)
	}
	r.jobs[j.Name] = j
}

// Names lists registered jobs in registration order.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// RunOnce executes the named job now. It returns lock.ErrNotAcquired when another run holds it.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	r.mu.RLock()
	j, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	release, err := r.locker.Acquire(ctx, "job:"+name, j.Interval)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("lock release failed", zap.String("job", name), zap.Error(err))
		}
	}()

	started := time.Now()
	err = j.Run(ctx)
	r.metrics.ObserveJob(name, time.Since(started), err)
	if err != nil {
		r.log.Error("job failed", zap.String("job", name), zap.Duration("took", time.Since(started)), zap.Error(err))
		return err
	}
	r.log.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(started)))
	return nil
}

// Start blocks until ctx is cancelled. A failing run is logged and the schedule continues.
func (r *Runner) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.Names() {
		r.mu.RLock()
		j := r.jobs[name]
		r.mu.RUnlock()

		g.Go(func() error {
			r.loop(gctx, j)
			return nil
		})
	}
	r.log.Info("job runner started", zap.Strings("jobs", r.Names()))
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, j Job) {
	if j.RunAtStart {
		r.tick(ctx, j.Name)
	}
	t := time.NewTicker(j.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.tick(ctx, j.Name)
		}
	}
}

func (r *Runner) tick(ctx context.Context, name string) {
	err := r.RunOnce(ctx, name)
	if errors.Is(err, lock.ErrNotAcquired) {
		r.log.Debug("job skipped, lock held elsewhere", zap.String("job", name))
	}
}
