// Package bootstrap builds the process-wide services from configuration.
// Both the HTTP server and syncctl start from Build.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models/reports"
	"github.com/daaty/dashboard-mobilidade-urbana-main/sheetsync"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/daaty/dashboard-mobilidade-urbana-main/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	Cache    cache.Cache
	Registry *prometheus.Registry

	Sync      *workflow.SyncService
	Imports   *workflow.ImportService
	Reports   *reports.Service
	Handlers  *sheetsync.Handlers
	Publisher *sheetsync.Publisher

	closers []func() error
}

// Options tune Build for callers that need less than the full server.
type Options struct {
	// SkipMigrations overrides SKIP_MIGRATIONS when true.
	SkipMigrations bool
	// DBAttempts caps DB_MAX_CONNECT_ATTEMPTS; 0 keeps the configured value.
	DBAttempts int
	// RedisAttempts bounds the Redis connection retries; 0 retries forever.
	RedisAttempts int
}

// Build connects the store, cache and Google clients and wires every
// service. Optional integrations that fail to start are logged and left
// out; the store is the only hard dependency.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dbCfg := cfg.Database
	if opts.DBAttempts > 0 && (dbCfg.MaxConnectAttempts <= 0 || dbCfg.MaxConnectAttempts > opts.DBAttempts) {
		dbCfg.MaxConnectAttempts = opts.DBAttempts
	}
	db, err := config.ConnectDatabaseWithRetry(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	app.DB = db
	if sqlDB, err := db.DB(); err == nil {
		app.closers = append(app.closers, sqlDB.Close)
	}

	if cfg.SkipMigrations || opts.SkipMigrations {
		logger.WithField("field", "migrations").Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	} else if err := models.MigrateTable(db); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb, locker, err := config.ConnectRedisWithRetry(ctx, cfg.Redis, opts.RedisAttempts)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable; using in-memory cache and local sync lock")
	}
	if rdb != nil {
		app.Redis = rdb
		app.closers = append(app.closers, rdb.Close)
	}
	app.Cache = cache.New(rdb, cfg.Redis.CacheTTL())

	source, err := newSource(ctx, cfg.Sheets, logger)
	if err != nil {
		logger.WithError(err).Warn("google sheets unavailable; external sync stage disabled")
	}

	collectorsSet, err := workflow.NewSyncMetrics(app.Registry)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	validate := utils.NewValidator()
	priority := workflow.NewPriorityResolver()
	aggregator := workflow.NewMetricsAggregator(db, logger)

	deps := workflow.SyncDependencies{
		DB:         db,
		Reconciler: workflow.NewReconciler(db, priority, validate, logger, collectorsSet),
		Metrics:    aggregator,
		Duplicates: workflow.NewDuplicateResolver(db, priority, logger),
		Locker:     workflow.NewSyncLocker(locker, cfg.Sync.LockTTL(), logger),
		Cache:      app.Cache,
		Collectors: collectorsSet,
		Logger:     logger,
		Config:     cfg.Sync,
	}
	if source != nil {
		deps.Source = source
	}
	app.Sync = workflow.NewSyncService(deps)

	importDeps := workflow.ImportDependencies{
		DB:       db,
		Validate: validate,
		Metrics:  aggregator,
		Cache:    app.Cache,
		Logger:   logger,
		MaxBytes: cfg.Import.MaxBytes,
	}
	if cfg.Import.ArchiveBucket != "" {
		client, err := config.NewStorageClient(ctx, cfg.Sheets.CredentialsJSON)
		if err != nil {
			logger.WithError(err).Warn("cloud storage unavailable; imports are not archived")
		} else {
			app.closers = append(app.closers, client.Close)
			if archiver := workflow.NewGCSArchiver(client, cfg.Import.ArchiveBucket); archiver != nil {
				importDeps.Archiver = archiver
			}
		}
	}
	app.Imports = workflow.NewImportService(importDeps)
	app.Reports = reports.NewService(db, app.Cache, logger)

	if cfg.PubSub.ProjectID != "" {
		client, err := config.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			logger.WithError(err).Warn("pubsub unavailable; sync trigger disabled")
		} else {
			app.closers = append(app.closers, client.Close)
			app.Publisher = sheetsync.NewPublisher(client, cfg.PubSub)
		}
	}
	app.Handlers = sheetsync.NewHandlers(app.Sync, logger, cfg.PubSub.PushEnabled)
	return app, nil
}

// newSource falls back to the canned spreadsheet when no id is configured.
func newSource(ctx context.Context, cfg config.SheetsConfig, logger logrus.FieldLogger) (workflow.ExternalSource, error) {
	if cfg.UseMockSource() {
		logger.WithField("spreadsheet", cfg.SpreadsheetID).Info("using mock sheet source")
		return sheetsync.NewMockSource(logger, nil), nil
	}
	svc, err := config.NewSheetsService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return sheetsync.NewSource(svc, cfg, logger), nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
