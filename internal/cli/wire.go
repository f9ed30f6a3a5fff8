package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/logging"
	"github.com/iliyamo/table-reservation/internal/migrate"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/scheduler"
	"github.com/iliyamo/table-reservation/internal/service"
)

// storeHandle keeps the raw pool next to the store so migrations can run
// on it.  Exactly one of mysql and pg is set for SQL drivers.
type storeHandle struct {
	store scheduler.Store
	mysql *sql.DB
	pg    *pgxpool.Pool
}

func (h storeHandle) Close() {
	if h.mysql != nil {
		_ = h.mysql.Close()
	}
	if h.pg != nil {
		h.pg.Close()
	}
}

func openStore(ctx context.Context, cfg config.Config) (storeHandle, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return storeHandle{}, err
		}
		return storeHandle{store: repository.NewMySQLStore(db), mysql: db}, nil
	case config.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return storeHandle{}, err
		}
		return storeHandle{store: repository.NewPostgresStore(pool), pg: pool}, nil
	default:
		return storeHandle{store: repository.NewMemoryStore()}, nil
	}
}

// applySchema runs pending migrations for SQL stores.  The memory store
// has no schema and reports nothing applied.
func applySchema(ctx context.Context, h storeHandle) ([]string, error) {
	switch {
	case h.mysql != nil:
		return migrate.UpMySQL(ctx, h.mysql)
	case h.pg != nil:
		return migrate.UpPostgres(ctx, h.pg)
	default:
		return nil, nil
	}
}

// app is everything a command needs to talk to the scheduler.
type app struct {
	cfg   config.Config
	log   zerolog.Logger
	db    storeHandle
	rdb   *redis.Client
	sched *scheduler.Scheduler
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.db.Close()
}

// buildApp opens the store and wires the scheduler.  Redis is dialled when
// the caller wants it for middleware or when LOCK_BACKEND=redis; only the
// latter makes an unreachable Redis fatal.
func buildApp(ctx context.Context, cfg config.Config, log zerolog.Logger, wantRedis bool) (*app, error) {
	h, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	a := &app{cfg: cfg, log: log, db: h}

	if cfg.DBAutoMigrate {
		applied, err := applySchema(ctx, h)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info().Strs("files", applied).Msg("schema migrated")
		}
	}

	redisLocks := cfg.LockBackend == "redis"
	if wantRedis || redisLocks {
		rcfg := config.LoadRedisConfig()
		rdb, err := config.NewRedisClient(rcfg)
		switch {
		case err != nil && redisLocks:
			a.Close()
			return nil, fmt.Errorf("LOCK_BACKEND=redis: %w", err)
		case err != nil:
			log.Warn().Err(err).Msg("redis unavailable; rate limiting and caching disabled")
		default:
			log.Info().Str("addr", rcfg.Addr).Msg("redis connected")
			a.rdb = rdb
		}
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(logging.Component(log, "scheduler")),
		scheduler.WithDefaultDuration(cfg.DefaultDuration),
	}
	if redisLocks {
		opts = append(opts, scheduler.WithLocker(lock.NewRedisLocker(a.rdb, cfg.LockPrefix, cfg.LockTTL)))
	}
	if cfg.EventsEnabled {
		opts = append(opts, scheduler.WithPublisher(
			service.NewQueuePublisher(cfg.RabbitURL, cfg.EventsQueue, logging.Component(log, "events"))))
	} else {
		opts = append(opts, scheduler.WithPublisher(service.NopPublisher{}))
	}

	a.sched = scheduler.New(h.store, opts...)
	return a, nil
}
