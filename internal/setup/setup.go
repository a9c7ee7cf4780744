package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/hubwatch/reputeer/internal/cache"
	"github.com/hubwatch/reputeer/internal/database"
	"github.com/hubwatch/reputeer/internal/moderation"
	"github.com/hubwatch/reputeer/internal/redis"
	"github.com/hubwatch/reputeer/internal/scoring"
	"github.com/hubwatch/reputeer/internal/setup/config"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App bundles all engine dependencies for the lifetime of the process.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        database.Client
	Redis     rueidis.Client
	Resolver  *scoring.WeightResolver
	Policies  *scoring.PolicyCache
	Enforcer  *scoring.Enforcer
	Processor *scoring.BatchProcessor

	WeightBroadcast *cache.Broadcaster
	PolicyBroadcast *cache.Broadcaster

	listenCancel context.CancelFunc
}

// InitializeApp loads config and wires every component together.
func InitializeApp(ctx context.Context, autoMigrate bool) (*App, error) {
	cfg, configPath, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(&cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Loaded configuration", zap.String("path", configPath))

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, logger, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cacheTTL := time.Duration(cfg.Scoring.CacheTTL) * time.Second
	resolver := scoring.NewWeightResolver(db.Model().Weight(), cacheTTL, logger)
	policies := scoring.NewPolicyCache(db.Model().Policy(), cacheTTL, logger)

	var dispatcher scoring.Dispatcher
	if cfg.Policy.DispatchURL != "" {
		dispatcher = moderation.NewWebhookDispatcher(cfg.Policy.DispatchURL, logger)
	} else {
		dispatcher = moderation.NewLogDispatcher(logger)
	}

	enforcer := scoring.NewEnforcer(policies, dispatcher, &cfg.Policy, logger)
	processor := scoring.NewBatchProcessor(
		db.Model().Reputation(), policies, resolver, enforcer, &cfg.Scoring, logger)

	app := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Resolver:  resolver,
		Policies:  policies,
		Enforcer:  enforcer,
		Processor: processor,
	}

	// Redis is optional: a single-instance deployment works without the
	// cross-instance invalidation channel.
	if cfg.Redis.Host != "" {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			return nil, err
		}

		app.Redis = redisClient
		app.WeightBroadcast = cache.NewBroadcaster(redisClient, cache.WeightChannel, logger)
		app.PolicyBroadcast = cache.NewBroadcaster(redisClient, cache.PolicyChannel, logger)
		app.startListeners()
	}

	return app, nil
}

// startListeners subscribes to the invalidation channels so config writes
// on sibling instances drop this instance's cache entries too.
func (a *App) startListeners() {
	ctx, cancel := context.WithCancel(context.Background())
	a.listenCancel = cancel

	go func() {
		if err := a.WeightBroadcast.Listen(ctx, a.Resolver.Invalidate); err != nil {
			a.Logger.Error("Weight invalidation listener stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := a.PolicyBroadcast.Listen(ctx, a.Policies.Invalidate); err != nil {
			a.Logger.Error("Policy invalidation listener stopped", zap.Error(err))
		}
	}()
}

// Cleanup releases all resources in reverse dependency order.
func (a *App) Cleanup(_ context.Context) {
	if a.listenCancel != nil {
		a.listenCancel()
	}

	// Let in-flight directive deliveries finish before closing connections
	a.Enforcer.Wait()

	if a.Redis != nil {
		a.Redis.Close()
	}

	if err := a.DB.Close(); err != nil {
		a.Logger.Error("Failed to close database", zap.Error(err))
	}

	_ = a.Logger.Sync()
}

// newLogger builds the process logger at the configured level.
func newLogger(debug *config.Debug) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(debug.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}
