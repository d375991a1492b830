// Package app builds the dependency graph shared by the HTTP service and
// the CLI.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prudhvinik1/crmsync/internal/config"
	"github.com/prudhvinik1/crmsync/internal/crm"
	"github.com/prudhvinik1/crmsync/internal/crm/hubspot"
	"github.com/prudhvinik1/crmsync/internal/database"
	"github.com/prudhvinik1/crmsync/internal/logging"
	"github.com/prudhvinik1/crmsync/internal/orchestrator"
	"github.com/prudhvinik1/crmsync/internal/repositories"
	"github.com/prudhvinik1/crmsync/internal/services"
)

type App struct {
	Config       *config.Config
	Logger       *logging.Logger
	Definitions  *config.Definitions
	Registry     *crm.Registry
	Lookups      repositories.KeyLookupRepository
	Status       repositories.SyncStatusRepository
	Orchestrator *orchestrator.Orchestrator
	Sync         *services.SyncService
	Observer     *services.RecordObserver

	closers []func()
}

// NewLogger builds the configured logger writing to w.
func NewLogger(cfg *config.Config, w io.Writer) *logging.Logger {
	return logging.NewText(w, cfg.LogFormat, logging.Level(cfg.LogLevel), cfg.LogIndicator)
}

// Build opens the configured stores and wires the engine. Close releases
// everything Build opened.
func Build(ctx context.Context, cfg *config.Config, log *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	defs, err := config.LoadDefinitions(cfg.ModelDefinitions)
	if err != nil {
		return nil, err
	}
	a.Definitions = defs

	if err := a.openLookups(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var locker orchestrator.Locker
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		a.closers = append(a.closers, func() { redisClient.Close() })
		locker = orchestrator.NewRepositoryLocker(repositories.NewRedisLockRepository(redisClient), cfg.LockTTL, cfg.LockWait())
		a.Status = repositories.NewRedisSyncStatusRepository(redisClient)
	} else {
		log.Info(logging.LevelMid, "REDIS_URL not set, using in-process locks")
	}

	a.Registry = crm.NewRegistry()
	if pc, ok := cfg.Providers[hubspot.ProviderName]; ok {
		hubspot.Register(a.Registry, pc, hubspot.Options{CallTimeout: cfg.RemoteCallTimeout})
	}

	a.Orchestrator = orchestrator.New(orchestrator.Deps{
		Registry: a.Registry,
		Lookups:  a.Lookups,
		Locker:   locker,
		Status:   a.Status,
		Logger:   log,
	}, orchestrator.Settings{
		DefaultEnvironment: cfg.DefaultEnvironment,
		ObjectTables:       cfg.ObjectTableMappings(),
		KeyFormat:          cfg.PrimaryKeyFormat,
		Workers:            cfg.SyncWorkers,
	})
	a.Sync = services.NewSyncService(a.Orchestrator)
	a.Observer = services.NewRecordObserver(a.Sync, log)

	log.Info(logging.LevelHigh, "sync engine ready",
		"lookup_store", cfg.LookupStore,
		"providers", a.Registry.Names(),
		"models", defs.Names(),
	)
	return a, nil
}

func (a *App) openLookups(ctx context.Context) error {
	switch a.Config.LookupStore {
	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, a.Config.DatabaseURL, a.Config.SyncWorkers)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.Lookups = repositories.NewPostgresKeyLookupRepository(pool)
	case config.StoreSQLite:
		db, err := database.OpenSQLite(a.Config.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { db.Close() })
		a.Lookups = repositories.NewSQLiteKeyLookupRepository(db)
	case config.StoreMemory:
		a.Lookups = repositories.NewMemoryKeyLookupRepository()
	default:
		return fmt.Errorf("invalid lookup store %q", a.Config.LookupStore)
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
