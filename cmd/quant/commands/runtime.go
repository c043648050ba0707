package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wonny/ashare-rotation/internal/contracts"
	"github.com/wonny/ashare-rotation/internal/s0_data"
	"github.com/wonny/ashare-rotation/internal/s0_data/cache"
	"github.com/wonny/ashare-rotation/internal/s0_data/demo"
	"github.com/wonny/ashare-rotation/internal/s0_data/sqlite"
	"github.com/wonny/ashare-rotation/internal/s0_data/throttle"
	"github.com/wonny/ashare-rotation/pkg/config"
	"github.com/wonny/ashare-rotation/pkg/database"
	"github.com/wonny/ashare-rotation/pkg/logger"
	"github.com/wonny/ashare-rotation/pkg/redis"
)

// runtime bundles the config, logger and connections a command needs
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	store   contracts.DataStore
	db      *database.DB
	redis   *redis.Client
	closers []func()
}

// loadRuntime reads the config and builds the logger; no connections yet
func loadRuntime() (*runtime, error) {
	if dataSource != "" {
		// config.Load가 DATA_SOURCE 기준으로 검증하므로 먼저 반영
		os.Setenv("DATA_SOURCE", dataSource) //nolint:errcheck
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return &runtime{cfg: cfg, log: logger.New(cfg)}, nil
}

// setup loads the runtime and opens the market data store
func setup(ctx context.Context) (*runtime, error) {
	rt, err := loadRuntime()
	if err != nil {
		return nil, err
	}
	if err := rt.openStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// openStore builds source → cache (LRU + Redis) → throttle
func (rt *runtime) openStore(ctx context.Context) error {
	var inner contracts.DataStore

	switch rt.cfg.DataSource {
	case config.SourcePostgres:
		db, err := rt.database(ctx)
		if err != nil {
			return err
		}
		inner = s0_data.NewRepository(db.Pool)

	case config.SourceSQLite:
		st, err := sqlite.Open(ctx, rt.cfg.SQLitePath)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() { st.Close() }) //nolint:errcheck
		rt.log.WithFields(map[string]interface{}{
			"path":       rt.cfg.SQLitePath,
			"cap_source": st.CapSource(),
		}).Info("Opened SQLite store")
		inner = st

	case config.SourceDemo:
		st, stats := demo.Generate(demo.DefaultConfig())
		rt.log.WithFields(map[string]interface{}{
			"rows":         stats.Rows,
			"instruments":  stats.Instruments,
			"fundamentals": stats.Fundamentals,
		}).Info("Generated demo market")
		inner = st
	}

	store := inner
	if rt.cfg.CacheSize > 0 {
		cached, err := cache.New(inner, rt.cfg.CacheSize, rt.sharedCache(), rt.log)
		if err != nil {
			return err
		}
		store = cached
	}
	if rt.cfg.StoreRPS > 0 {
		store = throttle.New(store, rt.cfg.StoreRPS, rt.cfg.StoreBurst)
	}
	rt.store = store
	return nil
}

// sharedCache returns the Redis tier, nil when Redis is off or unreachable
func (rt *runtime) sharedCache() *redis.Cache {
	client := rt.redisClient()
	if client == nil || !client.Enabled() {
		return nil
	}
	return redis.NewCache(client, "ashare:market")
}

func (rt *runtime) redisClient() *redis.Client {
	if rt.redis != nil {
		return rt.redis
	}
	client, err := redis.New(rt.cfg)
	if err != nil {
		rt.log.WithError(err).Warn("Redis unavailable, continuing without it")
		return nil
	}
	rt.redis = client
	rt.closers = append(rt.closers, func() { client.Close() }) //nolint:errcheck
	return client
}

// database connects to Postgres once and applies the schema
func (rt *runtime) database(ctx context.Context) (*database.DB, error) {
	if rt.db != nil {
		return rt.db, nil
	}
	if rt.cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := database.New(rt.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	rt.db = db
	rt.closers = append(rt.closers, db.Close)
	return db, nil
}

// Close releases connections in reverse order
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
