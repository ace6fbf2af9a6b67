package authtokens

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authtokens/codec"
	internalaudit "github.com/MrEthical07/authtokens/internal/audit"
	"github.com/MrEthical07/authtokens/internal/rate"
	"github.com/MrEthical07/authtokens/store"
)

// Builder assembles an [Engine]. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient
	db     *sql.DB

	auditSink AuditSink
	logger    logr.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore injects a ready storage backend. It takes precedence over
// Storage.Backend; the engine does not close it.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis selects the Redis backend over an existing client. The client is
// also used by the refresh throttle; the engine does not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	b.config.Storage.Backend = StorageRedis
	return b
}

// WithPostgres selects the Postgres backend over an existing pool. The schema
// from store.Migrations must already be applied.
func (b *Builder) WithPostgres(db *sql.DB) *Builder {
	b.db = db
	b.config.Storage.Backend = StoragePostgres
	return b
}

// WithAuditSink sets the destination of audit events and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithLogger sets the logger for construction and shutdown messages. When
// auditing is enabled without a sink, events go to this logger.
func (b *Builder) WithLogger(logger logr.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token expiry. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, connects the storage backend when the
// Builder was not handed one, and returns a ready [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := resolveLogger(b.logger)
	now := b.now
	if now == nil {
		now = time.Now
	}

	c, err := codec.New(codec.Config{
		SignSecret:    []byte(cfg.Tokens.SignSecret),
		EncryptSecret: []byte(cfg.Tokens.EncryptSecret),
		Issuer:        cfg.Tokens.Issuer,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cfg,
		codec:   c,
		logger:  logger,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- STORAGE --------
	if err := b.buildStore(engine, cfg, now); err != nil {
		engine.closeOwned()
		return nil, err
	}

	var rotator store.Rotator
	if cfg.Refresh.AtomicRotation {
		r, ok := engine.store.(store.Rotator)
		if !ok {
			engine.closeOwned()
			return nil, errors.New("Refresh AtomicRotation requires a store implementing store.Rotator")
		}
		rotator = r
	}

	// -------- THROTTLE --------
	if cfg.Refresh.EnableThrottle {
		rc := rate.Config{
			Enabled:     true,
			MaxAttempts: cfg.Refresh.MaxAttempts,
			Cooldown:    cfg.Refresh.Cooldown,
		}
		if engine.redis != nil {
			engine.limiter = rate.NewRedis(engine.redis, rc)
		} else {
			engine.limiter = rate.NewMemory(rc, now)
		}
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = NewLogrSink(logger)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	engine.flows = engine.buildFlows(rotator)

	b.built = true
	logger.V(1).Info("token engine built",
		"backend", string(cfg.Storage.Backend),
		"atomicRotation", cfg.Refresh.AtomicRotation,
		"rotateValue", cfg.Refresh.RotateValue,
		"throttle", cfg.Refresh.EnableThrottle,
	)

	return engine, nil
}

func (b *Builder) buildStore(engine *Engine, cfg Config, now func() time.Time) error {
	ttl := cfg.Tokens.RefreshTokenMaxAge
	engine.redis = b.redis

	if b.store != nil {
		engine.store = b.store
		return nil
	}

	switch cfg.Storage.Backend {
	case StorageMemory:
		engine.store = store.NewMemoryStore()
		return nil

	case StorageRedis:
		if engine.redis == nil {
			if cfg.Storage.Redis.Addr == "" {
				return errors.New("Storage Redis Addr or a redis client is required")
			}
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Storage.Redis.Addr,
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			engine.redis = client
			engine.closers = append(engine.closers, client.Close)
		}
		s, err := store.NewRedisStore(engine.redis, cfg.Storage.RedisPrefix, ttl)
		if err != nil {
			return err
		}
		engine.store = s
		return nil

	case StoragePostgres:
		db := b.db
		if db == nil {
			if cfg.Storage.Postgres.DSN == "" {
				return errors.New("Storage Postgres DSN or a database handle is required")
			}
			opened, err := sql.Open("postgres", cfg.Storage.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			db = opened
			engine.closers = append(engine.closers, opened.Close)
		}
		s, err := store.NewPostgresStore(db, cfg.Storage.Postgres.Table, ttl)
		if err != nil {
			return err
		}
		engine.store = s.WithClock(now)
		return nil
	}

	return fmt.Errorf("Storage Backend %q is not supported", cfg.Storage.Backend)
}

func resolveLogger(logger logr.Logger) logr.Logger {
	if logger.GetSink() == nil {
		return logr.Discard()
	}
	return logger
}
