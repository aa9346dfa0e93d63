package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/vijayaragavanr18/Vervathon25/internal/api"
	"github.com/vijayaragavanr18/Vervathon25/internal/app/progression"
	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
	"github.com/vijayaragavanr18/Vervathon25/internal/health"
	"github.com/vijayaragavanr18/Vervathon25/internal/infra/postgres"
	"github.com/vijayaragavanr18/Vervathon25/internal/infra/redis"
	"github.com/vijayaragavanr18/Vervathon25/internal/infra/sqlite"
	"github.com/vijayaragavanr18/Vervathon25/internal/logging"
)

// backlogLimit is the number of stale users above which /health degrades.
const backlogLimit = 1000

// Daemon is the Genavator runtime. It wires together all services.
type Daemon struct {
	Config Config
	Log    *zap.Logger

	Store       domain.Store
	Leaderboard *redis.Leaderboard // nil unless redis.enabled

	Coordinator   *progression.Coordinator
	Queries       *progression.Queries
	Notifications *progression.NotificationFeed
	Reconciler    *progression.Reconciler
	Health        *health.Checker
	Server        *api.Server

	cancel context.CancelFunc
}

// New loads the configuration and creates a Daemon.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon with every service wired.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	d := &Daemon{Config: cfg, Log: log}

	d.Store, err = openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	catalog, err := progression.LoadCatalog(cfg.Progression.CatalogFile)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("load achievement catalog: %w", err)
	}
	loc, _ := cfg.Location()

	d.Notifications = progression.NewNotificationFeed(d.Store)
	observers := []progression.Observer{d.Notifications}

	if cfg.Redis.Enabled {
		d.Leaderboard, err = redis.Open(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, log)
		if err != nil {
			d.Close()
			return nil, err
		}
		observers = append(observers, d.Leaderboard)
	}

	opts := []progression.Option{
		progression.WithLogger(log),
		progression.WithLocation(loc),
		progression.WithObservers(observers...),
		progression.WithMaxPoints(cfg.Progression.MaxPoints),
		progression.WithCASAttempts(cfg.Progression.CASAttempts),
		progression.WithMilestones(cfg.Progression.Milestones),
	}
	if !cfg.Telemetry.Tracing {
		opts = append(opts, progression.WithTracer(noop.NewTracerProvider().Tracer("")))
	}
	d.Coordinator = progression.NewCoordinator(d.Store, d.Store, d.Store, catalog, opts...)

	var cache progression.LeaderboardCache
	if d.Leaderboard != nil {
		cache = d.Leaderboard
	}
	d.Queries = progression.NewQueries(d.Coordinator, cache)

	interval, _ := cfg.ReconcileInterval()
	d.Reconciler = progression.NewReconciler(d.Store, d.Coordinator, interval, cfg.Reconciler.Batch, log)

	checks := []health.Check{
		health.PingCheck("store", d.Store),
		health.BacklogCheck(d.Store, backlogLimit),
	}
	if cfg.Storage.Driver == "sqlite" {
		checks = append(checks, health.DataDirCheck(cfg.Storage.Dir))
	}
	if d.Leaderboard != nil {
		checks = append(checks, health.PingCheck("redis", d.Leaderboard))
	}
	d.Health = health.NewChecker(log, checks...)

	d.Server = api.NewServer(d.Coordinator, d.Queries, d.Notifications, d.Health, log)
	d.Server.SetCORSOrigins(cfg.Server.CORSOrigins)
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	log.Info("daemon initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("redis", d.Leaderboard != nil),
		zap.Int("achievements", catalog.Len()),
		zap.String("timezone", loc.String()))
	return d, nil
}

func openStore(ctx context.Context, cfg StorageConfig) (domain.Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		db, err := sqlite.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	}
}

// Start launches background services: health checks, the reconciler and
// the leaderboard cache warm-up.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	if d.Config.Reconciler.Enabled {
		if err := d.Reconciler.Start(ctx); err != nil {
			return err
		}
	}

	if d.Leaderboard != nil {
		go func() {
			if _, err := d.Leaderboard.Warm(ctx, d.Store); err != nil {
				d.Log.Warn("leaderboard warm-up failed, serving from store", zap.Error(err))
			}
		}()
	}
	return nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}

	addr := d.Config.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		d.Log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	d.Log.Info("serving", zap.String("addr", "http://"+addr), zap.Bool("metrics", d.Config.Telemetry.Prometheus))
	fmt.Printf("Genavator serving on http://%s\n", addr)

	err := httpServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		d.Close()
		return err
	}
	<-done
	d.Close()
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Reconciler != nil {
		if err := d.Reconciler.Stop(); err != nil {
			d.Log.Warn("stop reconciler", zap.Error(err))
		}
	}
	if d.Leaderboard != nil {
		_ = d.Leaderboard.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	_ = d.Log.Sync()
}
