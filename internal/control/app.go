// Package control wires configuration into running components and owns their
// lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/librarian/internal/api"
	"github.com/vietddude/librarian/internal/core/config"
	"github.com/vietddude/librarian/internal/core/ledger"
	"github.com/vietddude/librarian/internal/core/worker"
	"github.com/vietddude/librarian/internal/infra/gateway"
	"github.com/vietddude/librarian/internal/infra/listings"
	"github.com/vietddude/librarian/internal/infra/quota"
	redisclient "github.com/vietddude/librarian/internal/infra/redis"
	"github.com/vietddude/librarian/internal/infra/requests"
	"github.com/vietddude/librarian/internal/infra/storage"
	"github.com/vietddude/librarian/internal/infra/storage/memory"
	"github.com/vietddude/librarian/internal/infra/storage/postgres"
	"github.com/vietddude/librarian/internal/maintenance/batch"
	"github.com/vietddude/librarian/internal/maintenance/chapters"
	"github.com/vietddude/librarian/internal/maintenance/health"
)

const userAgent = "librarian/1.0"

// App is the running service.
type App struct {
	cfg         *config.AppConfig
	db          *postgres.DB
	store       *memory.MemoryStorage
	redisClient *redisclient.Client
	quota       *quota.State
	requests    *requests.Client
	listings    *listings.Client
	chapters    *batch.Service
	scheduler   *worker.Scheduler
	healthMon   *health.Monitor
	server      *api.Server
	log         *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	app := &App{
		cfg:   cfg,
		quota: quota.NewState(),
		log:   slog.Default().With("component", "app"),
	}

	// 1. Storage
	var items storage.ItemRepository
	var runs storage.RunRepository
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		app.db = db
		items = postgres.NewItemRepo(db)
		runs = postgres.NewRunRepo(db)
		app.log.Info("Using PostgreSQL storage")
	} else {
		app.store = memory.NewMemoryStorage()
		items = memory.NewItemRepo(app.store)
		runs = memory.NewRunRepo(app.store)
		app.log.Info("Using Memory storage")
	}

	// 2. Redis, optional
	var cache gateway.EndpointCache = gateway.NewMemoryCache()
	var locker batch.Locker
	if cfg.Redis.Enabled() {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			app.log.Warn("Failed to connect to Redis, using local cache and lock", "error", err)
		} else {
			app.redisClient = rc
			cache = rc
			locker = rc
		}
	}

	// 3. External integrations
	reqSel, reqGw, reqMon := newIntegration("requests", cfg.Requests, cache)
	app.requests = requests.NewClient(cfg.Requests, reqSel, reqGw)

	lstSel, lstGw, lstMon := newIntegration("listings", cfg.Listings.EndpointConfig, cache)
	app.listings = listings.NewClient(cfg.Listings, cfg.Maintenance.CachePath, lstSel, lstGw, app.quota)

	// 4. Chapter image maintenance
	ext := cfg.Maintenance.Extractor
	op := chapters.NewOperation(
		chapters.NewCommandExtractor(ext.Command, ext.Args, ext.Timeout),
		cfg.Maintenance.ImagesPath,
	)
	app.chapters = batch.NewService(batch.ServiceConfig{
		Task:       chapters.Task,
		LedgerPath: ledger.PathIn(cfg.Maintenance.CachePath),
		LockTTL:    cfg.Maintenance.LockTTL,
	}, items, runs, op, locker)

	at, err := worker.ParseTimeOfDay(cfg.Maintenance.RunAt)
	if err != nil {
		return nil, err
	}
	app.scheduler = worker.NewScheduler(chapters.Task, at, cfg.Maintenance.MaxRuntime, func(ctx context.Context) error {
		_, err := app.chapters.RunNow(ctx)
		switch {
		case errors.Is(err, batch.ErrRunInProgress):
			app.log.Info("Skipping scheduled run, another run is active")
			return nil
		case errors.Is(err, batch.ErrServiceStopped):
			return nil
		}
		return err
	})

	// 5. Health
	app.healthMon = health.NewMonitor(
		[]health.TaskSource{app.chapters},
		[]health.Integration{
			{Name: "requests", Enabled: cfg.Requests.Reachable(), URLs: cfg.Requests.URLs, Selector: reqSel, Monitor: reqMon},
			{Name: "listings", Enabled: cfg.Listings.Reachable(), URLs: cfg.Listings.URLs, Selector: lstSel, Monitor: lstMon},
		},
		app.quota,
	)
	if app.db != nil {
		app.healthMon.AddDependency("database", app.db.Health)
	}
	if app.redisClient != nil {
		app.healthMon.AddDependency("redis", app.redisClient.Ping)
	}

	// 6. HTTP surface
	app.server = api.NewServer(cfg.Server.Port, api.Deps{
		Requests:    app.requests,
		Listings:    app.listings,
		Maintenance: app.chapters,
		Health:      app.healthMon,
	})

	return app, nil
}

func newIntegration(
	name string,
	cfg config.EndpointConfig,
	cache gateway.EndpointCache,
) (gateway.EndpointSelector, *gateway.Gateway, *gateway.Monitor) {
	var prober gateway.Prober
	if cfg.ProbeGRPC {
		prober = &gateway.GRPCProber{}
	} else {
		prober = gateway.NewHTTPProber(cfg.ProbePath, cfg.APIKey)
	}

	var selector gateway.EndpointSelector = gateway.NewSelector(prober, cfg.ProbeTimeout)
	if cfg.CacheTTL > 0 {
		selector = gateway.NewCachedSelector(selector, cache, name, cfg.CacheTTL)
	}

	monitor := gateway.NewMonitor()
	gw := gateway.New(gateway.Options{
		Name:      name,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Monitor:   monitor,
		UserAgent: userAgent,
	})
	return selector, gw, monitor
}

// Handler exposes the HTTP router.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Chapters returns the chapter image service.
func (a *App) Chapters() *batch.Service {
	return a.chapters
}

// Start starts the HTTP server, the scheduler and background collectors.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	go a.scheduler.Start(ctx)

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	a.log.Info("Librarian started",
		"port", a.cfg.Server.Port,
		"run_at", a.cfg.Maintenance.RunAt,
		"requests", a.requests.Enabled(),
		"listings", a.cfg.Listings.Reachable(),
	)
	return nil
}

// Stop cancels any active run and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping Librarian...")

	a.chapters.Stop()

	err := a.server.Stop(ctx)

	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			a.log.Warn("Failed to close Redis", "error", cerr)
		}
	}
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			a.log.Warn("Failed to close database", "error", cerr)
		}
	}
	return err
}
