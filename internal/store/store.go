// Package store owns the Postgres pool, the price summary writer and the
// Redis-backed token cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/pkg/utils"
)

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// Store bundles the catalog/price database and the optional Redis cache.
type Store struct {
	PG     *pgxpool.Pool
	redis  *redis.Client
	logger *zap.Logger
}

// Open connects to Postgres and, when redisAddr is set, to Redis. Both are
// pinged so misconfiguration fails before any work starts.
func Open(ctx context.Context, pgURL string, pgPoolConfig PGPoolConfig, redisAddr string, redisDB int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: redisAddr,
			DB:   redisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
	}

	pool, err := connectPG(ctx, pgURL, pgPoolConfig)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	logger.Info("store.connected",
		zap.String("postgres", utils.MaskDSN(pgURL)),
		zap.Bool("redis", rdb != nil))
	return &Store{PG: pool, redis: rdb, logger: logger}, nil
}

func connectPG(ctx context.Context, pgURL string, pgPoolConfig PGPoolConfig) (*pgxpool.Pool, error) {
	if pgURL == "" {
		return nil, errors.New("postgres url is empty")
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if pgPoolConfig.MaxConns > 0 {
		cfg.MaxConns = pgPoolConfig.MaxConns
	}
	if pgPoolConfig.MinConns > 0 {
		cfg.MinConns = pgPoolConfig.MinConns
	}
	if pgPoolConfig.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
	}
	if pgPoolConfig.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
	}
	if pgPoolConfig.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// Redis returns the Redis client, or nil when none is configured.
func (s *Store) Redis() *redis.Client { return s.redis }

// HealthCheck pings Postgres and, if configured, Redis.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.PG == nil {
		return errors.New("postgres not initialized")
	}
	if err := s.PG.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
