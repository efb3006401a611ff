package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/aggregator"
	"github.com/johnrirwin/topicbuddy/internal/cache"
	"github.com/johnrirwin/topicbuddy/internal/config"
	"github.com/johnrirwin/topicbuddy/internal/database"
	"github.com/johnrirwin/topicbuddy/internal/events"
	"github.com/johnrirwin/topicbuddy/internal/httpapi"
	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
	"github.com/johnrirwin/topicbuddy/internal/scheduler"
	"github.com/johnrirwin/topicbuddy/internal/sources"
	"github.com/johnrirwin/topicbuddy/internal/syncer"
)

// topicStore is what the app needs from a topic backend.
type topicStore interface {
	syncer.TopicRepository
	httpapi.TopicReviewer
}

// personaStore is what the app needs from a persona backend.
type personaStore interface {
	syncer.PersonaRepository
	SeedPersonas(ctx context.Context, personas []models.Persona) error
}

// App holds all application dependencies
type App struct {
	Config       *config.Config
	Logger       *logging.Logger
	Cache        cache.Cache
	Aggregator   *aggregator.Aggregator
	Orchestrator *syncer.Orchestrator
	Scheduler    *scheduler.Scheduler
	HTTPServer   *httpapi.Server
	Events       events.Publisher
	db           *database.DB
	personas     personaStore
	topics       topicStore
	syncLimiter  ratelimit.RateLimiter

	shutdownOnce sync.Once
}

// New creates and initializes a new App instance
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	// Initialize logger
	app.Logger = logging.New(logging.ParseLevel(cfg.Logging.Level))

	// Initialize cache and the manual sync throttle
	app.Cache = app.initCache()

	// Initialize persona and topic stores
	app.initDatabase()
	if err := app.seedPersonas(context.Background()); err != nil {
		return nil, err
	}

	// Initialize source registry, enrichment and aggregator
	app.Aggregator = app.initAggregator()

	// Initialize event publisher
	app.Events = app.initEvents()

	// Initialize orchestrator, scheduler and servers
	app.initSync()
	app.HTTPServer = httpapi.New(app.Orchestrator, app.topics, app.syncLimiter, cfg.Server.EnableManualSync, app.Logger)

	return app, nil
}

// Run performs a single sync in sync-once mode; otherwise it starts the
// scheduler and serves HTTP until shutdown.
func (a *App) Run(ctx context.Context) error {
	if a.Config.Sync.RunOnce {
		a.Logger.Info("Running a single sync")
		return a.Orchestrator.Run(ctx)
	}

	if a.Scheduler != nil {
		if err := a.Scheduler.Start(); err != nil {
			return err
		}
	}

	if a.Config.Sync.RunOnStart {
		a.Logger.Info("Starting initial sync in background...")
		a.Orchestrator.Start(ctx)
	}

	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))
	if err := a.HTTPServer.Start(a.Config.Server.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the application. It runs once; a concurrent
// caller blocks until the first shutdown has finished.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() { a.shutdown(ctx) })
	return nil
}

func (a *App) shutdown(ctx context.Context) {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}

	if a.Orchestrator != nil {
		done := make(chan struct{})
		go func() {
			a.Orchestrator.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.Logger.Warn("Shutdown deadline reached with a sync still running")
		}
	}

	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			a.Logger.Error("Event publisher close error", logging.WithField("error", err.Error()))
		}
	}

	switch c := a.Cache.(type) {
	case *cache.RedisCache:
		if err := c.Close(); err != nil {
			a.Logger.Error("Redis close error", logging.WithField("error", err.Error()))
		}
	case *cache.MemoryCache:
		c.Stop()
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error("Database close error", logging.WithField("error", err.Error()))
		}
	}
}

func (a *App) initCache() cache.Cache {
	cfg := a.Config.Cache
	window := a.Config.Server.ManualSyncWindow

	switch cfg.Backend {
	case "redis":
		a.Logger.Info("Using Redis cache backend", logging.WithField("addr", cfg.RedisAddr))
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		}, cfg.SnapshotTTL)
		if err != nil {
			a.Logger.Error("Failed to connect to Redis, falling back to memory cache", logging.WithField("error", err.Error()))
			a.setMemoryLimiter(window)
			return cache.NewMemory(cfg.SnapshotTTL)
		}
		// Use Redis for distributed rate limiting when available
		if window > 0 {
			a.syncLimiter = ratelimit.NewRedis(redisCache.Client(), "ratelimit:sync:", window)
			a.Logger.Info("Using Redis for distributed rate limiting")
		}
		return redisCache
	default:
		a.Logger.Info("Using in-memory cache backend")
		a.setMemoryLimiter(window)
		return cache.NewMemory(cfg.SnapshotTTL)
	}
}

func (a *App) setMemoryLimiter(window time.Duration) {
	if window > 0 {
		a.syncLimiter = ratelimit.New(window)
	}
}

func (a *App) initDatabase() {
	useMemory := func() {
		store := database.NewMemoryStore()
		a.personas = store
		a.topics = store
	}

	if a.Config.Database.Host == "" {
		a.Logger.Info("No database host configured, using in-memory store")
		useMemory()
		return
	}

	dbConfig := database.DefaultConfig()
	dbConfig.Host = a.Config.Database.Host
	dbConfig.Port = a.Config.Database.Port
	dbConfig.User = a.Config.Database.User
	dbConfig.Password = a.Config.Database.Password
	dbConfig.Database = a.Config.Database.Database
	dbConfig.SSLMode = a.Config.Database.SSLMode

	db, err := database.New(dbConfig)
	if err != nil {
		a.Logger.Warn("Failed to connect to PostgreSQL, using in-memory store", logging.WithField("error", err.Error()))
		useMemory()
		return
	}

	a.Logger.Info("Connected to PostgreSQL")
	if err := db.Migrate(context.Background()); err != nil {
		a.Logger.Warn("Failed to run migrations, using in-memory store", logging.WithField("error", err.Error()))
		_ = db.Close()
		useMemory()
		return
	}

	a.db = db
	a.personas = database.NewPersonaStore(db)
	a.topics = database.NewTopicStore(db)
}

// seedPersonas loads the persona file, if any, into the persona store. A
// broken file is fatal; a missing one is not.
func (a *App) seedPersonas(ctx context.Context) error {
	path := a.Config.Sync.PersonasFile
	if path == "" {
		path = config.FindPersonasConfig()
	}
	if path == "" {
		a.Logger.Info("No personas.yaml found, using personas already in the store")
		return nil
	}

	personas, err := config.LoadPersonas(path)
	if err != nil {
		return err
	}
	if err := a.personas.SeedPersonas(ctx, personas); err != nil {
		return err
	}

	a.Logger.Info("Loaded personas configuration", logging.WithFields(map[string]interface{}{
		"path":     path,
		"personas": len(personas),
	}))
	return nil
}

func (a *App) initAggregator() *aggregator.Aggregator {
	cfg := a.Config.Sources

	fetcherConfig := sources.DefaultConfig()
	if cfg.Timeout > 0 {
		fetcherConfig.Timeout = cfg.Timeout
	}
	if cfg.MaxItems > 0 {
		fetcherConfig.MaxItems = cfg.MaxItems
	}
	if cfg.UserAgent != "" {
		fetcherConfig.UserAgent = cfg.UserAgent
	}

	limiter := ratelimit.New(a.Config.Server.RateLimitDur)
	registry, client := sources.NewDefaultRegistry(sources.Options{
		Fetcher:         fetcherConfig,
		BilibiliBaseURL: cfg.BilibiliBaseURL,
		RSSHubBaseURL:   cfg.RSSHubBaseURL,
	}, limiter, a.Logger)

	enricher := aggregator.NewEnricher(ratelimit.New(cfg.DetailDelay), a.Logger)
	enricher.Register("bilibili", client)

	return aggregator.New(registry, enricher, a.Logger)
}

func (a *App) initEvents() events.Publisher {
	if len(a.Config.Events.KafkaBrokers) == 0 {
		return events.NopPublisher{}
	}

	publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers: a.Config.Events.KafkaBrokers,
		Topic:   a.Config.Events.KafkaTopic,
	})
	if err != nil {
		a.Logger.Warn("Failed to connect to Kafka, sync events disabled", logging.WithField("error", err.Error()))
		return events.NopPublisher{}
	}

	a.Logger.Info("Publishing sync events to Kafka", logging.WithField("topic", a.Config.Events.KafkaTopic))
	return publisher
}

func (a *App) initSync() {
	snapshots := syncer.NewSnapshots(a.Cache, a.Config.Cache.SnapshotTTL)

	var strategy syncer.Strategy
	switch syncer.ParseMode(a.Config.Sync.Mode) {
	case syncer.ModePersist:
		strategy = syncer.NewPersistPublisher(a.Aggregator, a.topics, a.Events, a.Logger)
	default:
		strategy = syncer.NewCachePublisher(a.Aggregator, snapshots, a.Events, a.Logger)
	}
	a.Logger.Info("Sync mode selected", logging.WithField("mode", string(strategy.Mode())))

	a.Orchestrator = syncer.NewOrchestrator(a.personas, strategy, snapshots, a.Events, a.Logger)

	if a.Config.Sync.Schedule != "" {
		a.Scheduler = scheduler.New(a.Config.Sync.Schedule, a.Orchestrator, a.Logger)
	}
}
