// Package cache keeps masking counters in redis so that several service
// instances share one view of the statistics.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/stats"
)

const (
	fieldSeen   = "seen"
	fieldMasked = "masked"
)

// Config contains redis connection configuration
type Config struct {
	RedisURL       string `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// RedisRecorder implements stats.Recorder on redis hashes
type RedisRecorder struct {
	client *redis.Client
	keys   keySpace
	logger *logger.Logger
}

var (
	_ stats.Recorder = (*RedisRecorder)(nil)
	_ stats.Resetter = (*RedisRecorder)(nil)
)

// NewRedisRecorder connects to redis and verifies the connection
func NewRedisRecorder(config *Config, log *logger.Logger) (*RedisRecorder, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	r := &RedisRecorder{
		client: redis.NewClient(opts),
		keys:   keySpace{prefix: config.KeyPrefix},
		logger: log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		_ = r.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Redis stats recorder initialized",
		logger.URL("redis_url", config.RedisURL),
		zap.Int("max_connections", opts.PoolSize),
		zap.String("key_prefix", r.keys.prefix),
	)

	return r, nil
}

// Record increments the counters of the event's kind and the totals
func (r *RedisRecorder) Record(ctx context.Context, event stats.Event) error {
	var masked int64
	if event.Masked {
		masked = 1
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.keys.kinds(), event.Kind)
	pipe.HIncrBy(ctx, r.keys.kind(event.Kind), fieldSeen, 1)
	pipe.HIncrBy(ctx, r.keys.kind(event.Kind), fieldMasked, masked)
	pipe.HIncrBy(ctx, r.keys.total(), fieldSeen, 1)
	pipe.HIncrBy(ctx, r.keys.total(), fieldMasked, masked)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Snapshot reads all counters
func (r *RedisRecorder) Snapshot(ctx context.Context) (stats.Snapshot, error) {
	snap := stats.Snapshot{ByKind: make(map[string]stats.KindCounts)}

	total, err := r.client.HGetAll(ctx, r.keys.total()).Result()
	if err != nil {
		return snap, fmt.Errorf("failed to read totals: %w", err)
	}
	counts := parseCounts(total)
	snap.Total, snap.Masked = counts.Seen, counts.Masked

	kinds, err := r.client.SMembers(ctx, r.keys.kinds()).Result()
	if err != nil {
		return snap, fmt.Errorf("failed to read kinds: %w", err)
	}

	for _, kind := range kinds {
		values, err := r.client.HGetAll(ctx, r.keys.kind(kind)).Result()
		if err != nil {
			return snap, fmt.Errorf("failed to read counters for %s: %w", kind, err)
		}
		snap.ByKind[kind] = parseCounts(values)
	}

	return snap, nil
}

// Reset removes every counter under the key prefix
func (r *RedisRecorder) Reset(ctx context.Context) error {
	kinds, err := r.client.SMembers(ctx, r.keys.kinds()).Result()
	if err != nil {
		return fmt.Errorf("failed to read kinds: %w", err)
	}

	keys := []string{r.keys.kinds(), r.keys.total()}
	for _, kind := range kinds {
		keys = append(keys, r.keys.kind(kind))
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear counters: %w", err)
	}

	r.logger.Info("Redis stats counters cleared", zap.Int("keys", len(keys)))
	return nil
}

// Close closes the redis connection pool
func (r *RedisRecorder) Close() error {
	return r.client.Close()
}

// keySpace builds the redis key layout
type keySpace struct {
	prefix string
}

func (k keySpace) join(parts ...string) string {
	key := k.prefix
	for _, p := range parts {
		if key == "" {
			key = p
			continue
		}
		key += ":" + p
	}
	return key
}

func (k keySpace) total() string { return k.join("total") }

func (k keySpace) kinds() string { return k.join("kinds") }

func (k keySpace) kind(kind string) string { return k.join("kind", kind) }

// parseCounts converts a counter hash into KindCounts, ignoring bad values
func parseCounts(values map[string]string) stats.KindCounts {
	var counts stats.KindCounts
	if v, err := strconv.ParseInt(values[fieldSeen], 10, 64); err == nil {
		counts.Seen = v
	}
	if v, err := strconv.ParseInt(values[fieldMasked], 10, 64); err == nil {
		counts.Masked = v
	}
	return counts
}
