package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
	"github.com/vijayaragavanr18/Vervathon25/internal/infra/metrics"
)

// Reconciler periodically rescans users whose progress record lags the
// ledger, e.g. after a degraded pass or a crash between append and write.
type Reconciler struct {
	users    domain.UserStore
	coord    *Coordinator
	interval time.Duration
	batch    int
	log      *zap.Logger

	mu    sync.Mutex
	sched gocron.Scheduler
}

// NewReconciler creates a reconciler. It does nothing until Start.
func NewReconciler(users domain.UserStore, coord *Coordinator, interval time.Duration, batch int, log *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{users: users, coord: coord, interval: interval, batch: batch, log: log.Named("reconciler")}
}

// RunOnce rescans up to one batch of stale users and returns how many
// were brought up to date.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.users.StaleUsers(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list stale users: %w", err)
	}
	metrics.StaleUsers.Set(float64(len(stale)))

	repaired := 0
	var errs []error
	for _, u := range stale {
		metrics.Rescans.WithLabelValues("reconciler").Inc()
		if _, err := r.coord.Rescan(ctx, u); err != nil {
			errs = append(errs, err)
			r.log.Warn("rescan failed", zap.String("user", string(u)), zap.Error(err))
			continue
		}
		repaired++
	}
	if len(stale) > 0 {
		r.log.Info("reconciled stale users", zap.Int("stale", len(stale)), zap.Int("repaired", repaired))
	}
	return repaired, errors.Join(errs...)
}

// Start schedules RunOnce every interval. Runs never overlap.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched != nil {
		return errors.New("reconciler already started")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("reconcile run failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule reconcile job: %w", err)
	}
	s.Start()
	r.sched = s
	r.log.Info("reconciler started", zap.Duration("interval", r.interval), zap.Int("batch", r.batch))
	return nil
}

// Stop shuts the scheduler down and waits for a running pass to finish.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched == nil {
		return nil
	}
	err := r.sched.Shutdown()
	r.sched = nil
	return err
}
