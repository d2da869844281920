// Package audit persists masking events in PostgreSQL. Rows carry the kind,
// field, source and outcome of each masking call; values are never stored.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/stats"
)

const schema = `
CREATE TABLE IF NOT EXISTS mask_events (
	id         BIGSERIAL PRIMARY KEY,
	kind       TEXT        NOT NULL,
	field      TEXT        NOT NULL DEFAULT '',
	source     TEXT        NOT NULL DEFAULT '',
	masked     BOOLEAN     NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS mask_events_kind_idx ON mask_events (kind);
CREATE INDEX IF NOT EXISTS mask_events_created_at_idx ON mask_events (created_at);`

const insertEvent = `
INSERT INTO mask_events (kind, field, source, masked, created_at)
VALUES (:kind, :field, :source, :masked, :created_at)`

const summarizeEvents = `
SELECT kind,
       COUNT(*) AS seen,
       COUNT(*) FILTER (WHERE masked) AS masked
FROM mask_events
GROUP BY kind
ORDER BY kind`

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// row is a mask_events row
type row struct {
	ID        int64     `db:"id"`
	Kind      string    `db:"kind"`
	Field     string    `db:"field"`
	Source    string    `db:"source"`
	Masked    bool      `db:"masked"`
	CreatedAt time.Time `db:"created_at"`
}

// kindSummary is one row of the GROUP BY kind query
type kindSummary struct {
	Kind   string `db:"kind"`
	Seen   int64  `db:"seen"`
	Masked int64  `db:"masked"`
}

// Store implements stats.Recorder on PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

var (
	_ stats.Recorder = (*Store)(nil)
	_ stats.Resetter = (*Store)(nil)
)

// NewStore connects to the database and creates the schema if needed
func NewStore(config *Config, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{db: db, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	log.Info("Audit store initialized",
		logger.URL("database_url", config.DatabaseURL),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns),
	)

	return store, nil
}

// EnsureSchema creates the mask_events table and its indexes
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts one event
func (s *Store) Record(ctx context.Context, event stats.Event) error {
	if _, err := s.db.NamedExecContext(ctx, insertEvent, toRow(event)); err != nil {
		return fmt.Errorf("failed to insert mask event: %w", err)
	}
	return nil
}

// Snapshot aggregates the stored events per kind
func (s *Store) Snapshot(ctx context.Context) (stats.Snapshot, error) {
	var rows []kindSummary
	if err := s.db.SelectContext(ctx, &rows, summarizeEvents); err != nil {
		return stats.Snapshot{ByKind: map[string]stats.KindCounts{}}, fmt.Errorf("failed to summarize mask events: %w", err)
	}
	return summarize(rows), nil
}

// Prune deletes events older than the given age and returns how many went
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mask_events WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune mask events: %w", err)
	}
	return res.RowsAffected()
}

// Reset deletes every stored event
func (s *Store) Reset(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mask_events`)
	if err != nil {
		return fmt.Errorf("failed to clear mask events: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("Mask events cleared", zap.Int64("rows", n))
	return nil
}

// RunRetention prunes events older than maxAge every interval until ctx is done
func (s *Store) RunRetention(ctx context.Context, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx, maxAge)
			if err != nil {
				s.logger.Warn("Failed to prune mask events", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("Pruned old mask events", zap.Int64("rows", n), zap.Duration("max_age", maxAge))
			}
		}
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func toRow(event stats.Event) row {
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	return row{
		Kind:      event.Kind,
		Field:     event.Field,
		Source:    event.Source,
		Masked:    event.Masked,
		CreatedAt: at.UTC(),
	}
}

func summarize(rows []kindSummary) stats.Snapshot {
	snap := stats.Snapshot{ByKind: make(map[string]stats.KindCounts, len(rows))}
	for _, r := range rows {
		snap.ByKind[r.Kind] = stats.KindCounts{Seen: r.Seen, Masked: r.Masked}
		snap.Total += r.Seen
		snap.Masked += r.Masked
	}
	return snap
}
