package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/raaihank/pii-masker/internal/masking"
)

// EnvPrefix is prepended to environment variable overrides, e.g.
// MASKER_SERVER_PORT or MASKER_STATS_BACKEND.
const EnvPrefix = "MASKER"

// envKeys are the scalar settings that can be overridden from the environment
// even when the config file does not mention them
var envKeys = []string{
	"server.port",
	"server.trust_proxy",
	"privacy.enabled",
	"logging.level",
	"logging.format",
	"rate_limit.enabled",
	"rate_limit.requests_per_min",
	"websocket.enabled",
	"websocket.username",
	"websocket.password",
	"stats.backend",
	"stats.redis.url",
	"stats.postgres.database_url",
	"batch.batch_size",
	"batch.dry_run",
}

// Loader reads configuration from a file and environment variables
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. An empty configPath searches the default
// locations for config.yaml.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pii-masker/")
	v.AddConfigPath("$HOME/.pii-masker/")

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := GetDefaults()
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.trust_proxy", defaults.Server.TrustProxy)
	v.SetDefault("privacy.enabled", defaults.Privacy.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("rate_limit.enabled", defaults.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_min", defaults.RateLimit.RequestsPerMin)
	v.SetDefault("websocket.enabled", defaults.WebSocket.Enabled)
	v.SetDefault("websocket.username", defaults.WebSocket.Username)
	v.SetDefault("websocket.password", defaults.WebSocket.Password)
	v.SetDefault("stats.backend", defaults.Stats.Backend)
	v.SetDefault("stats.redis.url", defaults.Stats.Redis.URL)
	v.SetDefault("stats.postgres.database_url", defaults.Stats.Postgres.DatabaseURL)
	v.SetDefault("batch.batch_size", defaults.Batch.BatchSize)
	v.SetDefault("batch.dry_run", defaults.Batch.DryRun)
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads, decodes and validates the configuration
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

// ConfigFileUsed returns the path of the file that was read, if any
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()

	// Configured lists and maps replace the defaults instead of merging into them
	if l.v.IsSet("privacy.fields") {
		config.Privacy.Fields = nil
	}
	if l.v.IsSet("privacy.kinds") {
		config.Privacy.Kinds = nil
	}
	if l.v.IsSet("privacy.header_scrubbing.headers") {
		config.Privacy.HeaderScrubbing.Headers = nil
	}
	if l.v.IsSet("websocket.allowed_origins") {
		config.WebSocket.AllowedOrigins = nil
	}

	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	for _, name := range config.Privacy.Kinds {
		if name == "all" {
			continue
		}
		if _, err := masking.ParseKind(name); err != nil {
			return fmt.Errorf("invalid privacy kind: %w", err)
		}
	}

	for field, kind := range config.Privacy.Fields {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("empty field name in privacy.fields")
		}
		if _, err := masking.ParseKind(kind); err != nil {
			return fmt.Errorf("invalid kind for field %s: %w", field, err)
		}
	}

	if config.Stats.Postgres.Retention < 0 {
		return fmt.Errorf("invalid stats retention: %s", config.Stats.Postgres.Retention)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	switch config.Stats.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("invalid stats backend: %s (must be memory, redis, or postgres)", config.Stats.Backend)
	}

	if config.Batch.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", config.Batch.BatchSize)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Every valid
// change is delivered to callback; read or validation failures go to onError.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	l.v.WatchConfig()
}
