// Package recorder opens the stats backend selected in the configuration.
package recorder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/audit"
	"github.com/raaihank/pii-masker/internal/cache"
	"github.com/raaihank/pii-masker/internal/config"
	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/stats"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Open returns the recorder for cfg.Backend. An empty backend means memory.
func Open(cfg config.StatsConfig, log *logger.Logger) (stats.Recorder, error) {
	log = log.WithComponent("stats")

	switch cfg.Backend {
	case "", BackendMemory:
		log.Info("Using in-memory stats recorder")
		return stats.NewMemoryRecorder(), nil
	case BackendRedis:
		rec, err := cache.NewRedisRecorder(&cache.Config{
			RedisURL:       cfg.Redis.URL,
			MaxConnections: cfg.Redis.MaxConnections,
			MinIdleConns:   cfg.Redis.MinIdleConns,
			KeyPrefix:      cfg.Redis.KeyPrefix,
		}, log)
		if err != nil {
			return nil, err
		}
		return rec, nil
	case BackendPostgres:
		store, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Postgres.DatabaseURL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		log.Error("Unknown stats backend", zap.String("backend", cfg.Backend))
		return nil, fmt.Errorf("unknown stats backend: %s", cfg.Backend)
	}
}

// Reset clears the counters of rec, failing for backends that cannot reset
func Reset(ctx context.Context, rec stats.Recorder) error {
	r, ok := rec.(stats.Resetter)
	if !ok {
		return fmt.Errorf("stats backend %T cannot be reset", rec)
	}
	return r.Reset(ctx)
}

// LoggerConfig converts the logging section into a logger configuration
func LoggerConfig(cfg config.LoggingConfig) logger.Config {
	lc := logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
	}
	if cfg.File.Enabled {
		lc.File = &logger.FileConfig{
			Enabled:  cfg.File.Enabled,
			Path:     cfg.File.Path,
			MaxSize:  cfg.File.MaxSize,
			MaxAge:   cfg.File.MaxAge,
			Compress: cfg.File.Compress,
		}
	}
	return lc
}
