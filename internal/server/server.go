// Package server builds the estimator's dependencies from config and runs
// the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/graded-card-estimator/internal/api"
	memorycache "github.com/JakeFAU/graded-card-estimator/internal/cache/memory"
	rediscache "github.com/JakeFAU/graded-card-estimator/internal/cache/redis"
	"github.com/JakeFAU/graded-card-estimator/internal/clock/system"
	"github.com/JakeFAU/graded-card-estimator/internal/config"
	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
	"github.com/JakeFAU/graded-card-estimator/internal/gamestop"
	"github.com/JakeFAU/graded-card-estimator/internal/id/uuid"
	"github.com/JakeFAU/graded-card-estimator/internal/logging"
	memorypublisher "github.com/JakeFAU/graded-card-estimator/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/graded-card-estimator/internal/publisher/pubsub"
	"github.com/JakeFAU/graded-card-estimator/internal/ratelimit"
	gcsstorage "github.com/JakeFAU/graded-card-estimator/internal/storage/gcs"
	localstorage "github.com/JakeFAU/graded-card-estimator/internal/storage/local"
	memorystorage "github.com/JakeFAU/graded-card-estimator/internal/storage/memory"
	pgstore "github.com/JakeFAU/graded-card-estimator/internal/storage/postgres"
	"github.com/JakeFAU/graded-card-estimator/internal/telemetry"
)

// Version is reported as the tracing service version.
var Version = "dev"

const memoryTopic = "estimates"

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	service        *estimate.Service
	browser        *gamestop.Browser
	prober         *gamestop.Prober
	redisCache     *rediscache.Cache
	gcsStore       *gcsstorage.BlobStore
	lookupStore    *pgstore.LookupStore
	publisher      *gcppublisher.Publisher
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies. Chrome is not started until
// the first lookup.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (app *App, err error) {
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("snapshot_mode", string(cfg.SnapshotMode())),
	)

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:        cfg.Telemetry.TracingEnabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	cache, err := app.setupCache()
	if err != nil {
		return nil, err
	}
	blobStore, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	store, err := app.setupLookupStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, topic, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	app.browser, err = gamestop.NewBrowser(cfg.BrowserSettings(), cfg.GameStop.Selectors, logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser init failed: %w", err)
	}
	client, err := gamestop.NewClient(gamestop.ClientConfig{
		Selectors:      cfg.GameStop.Selectors,
		Currency:       cfg.GameStop.Currency,
		SnapshotMode:   cfg.SnapshotMode(),
		SnapshotPrefix: cfg.Storage.Prefix,
	}, app.browser, blobStore, clock, logger.Named("gamestop"))
	if err != nil {
		return nil, fmt.Errorf("gamestop client init failed: %w", err)
	}
	app.prober = gamestop.NewProber(gamestop.ProbeConfig{
		URL:       cfg.GameStop.EstimateURL,
		UserAgent: cfg.Browser.UserAgent,
		Timeout:   time.Duration(cfg.Browser.NavTimeoutSeconds) * time.Second,
	}, cfg.GameStop.Selectors, clock)

	deps := estimate.Deps{
		Looker:    client,
		Cache:     cache,
		Store:     store,
		Publisher: publisher,
		Limiter: ratelimit.New(ratelimit.Config{
			RPS:   cfg.Lookup.RateLimit.RPS,
			Burst: cfg.Lookup.RateLimit.Burst,
		}),
		Clock: clock,
		IDs:   uuid.New(),
	}
	app.service, err = estimate.NewService(estimate.Config{
		Topic:         topic,
		LookupTimeout: cfg.LookupTimeout(),
		LimiterKey:    limiterKey(cfg.GameStop.EstimateURL),
	}, deps, logger.Named("estimate"))
	if err != nil {
		return nil, fmt.Errorf("estimate service init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.service, app.prober, cfg, logger.Named("api"))
	return app, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Service returns the estimate service, for one-off lookups from the CLI.
func (a *App) Service() *estimate.Service {
	return a.service
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP until the context is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close releases every backend.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(_ context.Context) {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.lookupStore != nil {
		a.lookupStore.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *App) setupCache() (estimate.Cache, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		c, err := rediscache.New(rediscache.Config{
			Addr:     a.cfg.Cache.Redis.Addr,
			Password: a.cfg.Cache.Redis.Password,
			DB:       a.cfg.Cache.Redis.DB,
			TTL:      a.cfg.CacheTTL(),
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache init failed: %w", err)
		}
		a.redisCache = c
		a.logger.Info("using redis cache", zap.String("addr", a.cfg.Cache.Redis.Addr))
		return c, nil
	case config.CacheMemory:
		a.logger.Info("using in-memory cache", zap.Duration("ttl", a.cfg.CacheTTL()))
		return memorycache.New(memorycache.Config{
			TTL:        a.cfg.CacheTTL(),
			MaxEntries: a.cfg.Cache.MaxEntries,
		}), nil
	default:
		a.logger.Info("estimate cache disabled")
		return nil, nil
	}
}

func (a *App) setupStorage(ctx context.Context) (gamestop.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCS.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcsStore = store
		a.logger.Info("using GCS snapshot storage", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
		return store, nil
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local snapshot storage", zap.String("path", store.Dir()))
		return store, nil
	case config.StorageMemory:
		a.logger.Info("using in-memory snapshot storage")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("snapshot storage disabled")
		return nil, nil
	}
}

func (a *App) setupLookupStore(ctx context.Context) (estimate.LookupStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, keeping lookup history in memory")
		return memorystorage.NewLookupStore(a.cfg.Database.HistorySize), nil
	}
	store, err := pgstore.NewLookupStore(ctx, pgstore.Config{
		DSN:      a.cfg.Database.DSN,
		Table:    a.cfg.Database.Table,
		MaxConns: a.cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup store init failed: %w", err)
	}
	a.lookupStore = store
	if a.cfg.Database.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("lookup store schema: %w", err)
		}
	}
	a.logger.Info("lookup store initialized", zap.String("table", a.cfg.Database.Table))
	return store, nil
}

func (a *App) setupPublisher(ctx context.Context) (estimate.Publisher, string, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(0), memoryTopic, nil
	}
	pub, err := gcppublisher.New(ctx, gcppublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		TopicID:   a.cfg.PubSub.TopicName,
	})
	if err != nil {
		return nil, "", fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, a.cfg.PubSub.TopicName, nil
}

func limiterKey(estimateURL string) string {
	u, err := url.Parse(estimateURL)
	if err != nil || u.Hostname() == "" {
		return "gamestop"
	}
	return u.Hostname()
}
