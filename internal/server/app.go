// Package server assembles the pricewatch services from configuration and
// runs them until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/api"
	"github.com/JakeFAU/pricewatch/internal/clock/system"
	"github.com/JakeFAU/pricewatch/internal/config"
	"github.com/JakeFAU/pricewatch/internal/extract"
	collyfetcher "github.com/JakeFAU/pricewatch/internal/fetcher/colly"
	"github.com/JakeFAU/pricewatch/internal/hash/sha256"
	"github.com/JakeFAU/pricewatch/internal/id/uuid"
	"github.com/JakeFAU/pricewatch/internal/metrics"
	"github.com/JakeFAU/pricewatch/internal/monitor"
	lognotifier "github.com/JakeFAU/pricewatch/internal/notifier/logging"
	memnotifier "github.com/JakeFAU/pricewatch/internal/notifier/memory"
	psnotifier "github.com/JakeFAU/pricewatch/internal/notifier/pubsub"
	tgnotifier "github.com/JakeFAU/pricewatch/internal/notifier/telegram"
	"github.com/JakeFAU/pricewatch/internal/policy/ratelimit"
	"github.com/JakeFAU/pricewatch/internal/rules"
	gcsstorage "github.com/JakeFAU/pricewatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pricewatch/internal/storage/local"
	memorystorage "github.com/JakeFAU/pricewatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/pricewatch/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/pricewatch/internal/storage/sqlite"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// App holds the long-lived services of one pricewatch process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     alert.Store
	notifier  alert.Notifier
	scheduler *monitor.Scheduler
	rules     *rules.Service
	apiServer *api.Server
	closers   []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeAll()
			app = nil
		}
	}()

	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("notifier", cfg.Notifier.Driver),
	)
	metrics.Init()

	clock := system.New()
	ids := uuid.New()

	if app.store, err = setupStore(ctx, app, ids); err != nil {
		return nil, err
	}
	archive, err := setupArchive(ctx, app, clock)
	if err != nil {
		return nil, err
	}
	if app.notifier, err = setupNotifier(ctx, app, clock); err != nil {
		return nil, err
	}

	registry := extract.Default()
	logger.Info("extractors registered", zap.Strings("shops", registry.Shops()))
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Monitor.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Monitor.MaxBodyBytes,
	}, logger.Named("fetcher"))
	limiter := ratelimit.New(ratelimit.Config{
		MaxConcurrent: cfg.Monitor.MaxConcurrentFetches,
		MinDelay:      cfg.MinFetchDelay(),
	})

	app.scheduler = monitor.New(
		app.store,
		fetcher,
		registry,
		app.notifier,
		limiter,
		clock,
		archive,
		monitor.Config{
			Interval:      cfg.PollInterval(),
			FetchTimeout:  cfg.FetchTimeout(),
			NotifyTimeout: cfg.NotifyTimeout(),
			RunOnStart:    cfg.Monitor.RunOnStart,
		},
		logger.Named("monitor"),
	)
	app.rules = rules.New(app.store, fetcher, registry, limiter, clock, ids, cfg.FetchTimeout(), logger.Named("rules"))

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	app.apiServer = api.NewServer(app.rules, app.scheduler, api.Options{
		APIKey: apiKey,
		// Rule creation fetches once; leave room for a slow shop.
		RequestTimeout: cfg.FetchTimeout() + 10*time.Second,
		Ready:          app.ready,
	}, logger.Named("api"))

	return app, nil
}

// Handler exposes the HTTP API, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the scheduler and the HTTP server and blocks until ctx is
// canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		a.logger.Info("scheduler started",
			zap.Duration("interval", a.cfg.PollInterval()),
			zap.Bool("run_on_start", a.cfg.Monitor.RunOnStart),
		)
		a.scheduler.Run(ctx)
		a.logger.Info("scheduler stopped")
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	// The scheduler finishes settling the current pass before it returns.
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("scheduler did not stop before shutdown deadline")
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases stores, clients and pools in reverse construction order.
func (a *App) Close() {
	a.closeAll()
	a.logger.Info("shutdown complete")
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) ready(ctx context.Context) error {
	if p, ok := a.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %w", alert.ErrStore, err)
		}
	}
	return nil
}

func setupStore(ctx context.Context, app *App, ids alert.IDGenerator) (alert.Store, error) {
	cfg := app.cfg
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewRuleStore(ctx, pgstore.Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
		}, ids)
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		app.onClose("postgres", store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		app.logger.Info("using postgres rule store", zap.String("table", cfg.DB.Table))
		return store, nil
	case config.DriverSQLite:
		store, err := sqlitestore.New(ctx, cfg.SQLite.Path, ids)
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		app.onClose("sqlite", store.Close)
		app.logger.Info("using sqlite rule store", zap.String("path", cfg.SQLite.Path))
		return store, nil
	default:
		app.logger.Warn("using in-memory rule store; rules are lost on restart")
		store := memorystorage.NewRuleStore(ids)
		app.onClose("memory", store.Close)
		return store, nil
	}
}

func setupArchive(ctx context.Context, app *App, clock alert.Clock) (*monitor.DriftArchive, error) {
	cfg := app.cfg.Archive
	var blobs alert.BlobStore
	switch cfg.Driver {
	case config.DriverGCS:
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		app.onClose("gcs", store.Close)
		app.logger.Info("archiving drifted pages to GCS", zap.String("bucket", cfg.GCSBucket))
		blobs = store
	case config.DriverLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		app.logger.Info("archiving drifted pages locally", zap.String("path", cfg.BaseDir))
		blobs = store
	case config.DriverMemory:
		blobs = memorystorage.NewBlobStore()
	default:
		app.logger.Info("drift archive disabled")
		return nil, nil
	}
	return monitor.NewDriftArchive(blobs, sha256.New(), clock, cfg.Prefix), nil
}

func setupNotifier(ctx context.Context, app *App, clock alert.Clock) (alert.Notifier, error) {
	cfg := app.cfg
	switch cfg.Notifier.Driver {
	case config.DriverPubSub:
		n, err := psnotifier.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, clock)
		if err != nil {
			return nil, fmt.Errorf("pubsub notifier init failed: %w", err)
		}
		app.onClose("pubsub", n.Close)
		app.logger.Info("publishing notifications to Pub/Sub",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
		return n, nil
	case config.DriverTelegram:
		endpoint := ""
		if base := strings.TrimRight(cfg.Telegram.APIBase, "/"); base != "" {
			endpoint = base + "/bot%s/%s"
		}
		n, err := tgnotifier.New(tgnotifier.Config{
			Token:       cfg.Telegram.BotToken,
			APIEndpoint: endpoint,
			Timeout:     time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second,
		}, app.logger.Named("telegram"))
		if err != nil {
			return nil, fmt.Errorf("telegram notifier init failed: %w", err)
		}
		return n, nil
	case config.DriverMemory:
		return memnotifier.New(), nil
	default:
		return lognotifier.New(app.logger.Named("notifier")), nil
	}
}
