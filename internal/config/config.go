// Package config loads and validates the enricher configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/interest-enricher/internal/common"
)

// Config is the fully resolved application configuration.
type Config struct {
	Logging  LoggingConfig
	Database DatabaseConfig
	Server   ServerConfig
	Search   SearchConfig
	Cache    CacheConfig
	Pipeline PipelineConfig
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string
}

// SearchConfig configures the ad-interest search API client.
type SearchConfig struct {
	BaseURL           string
	APIVersion        string
	AccessToken       string
	Timeout           time.Duration
	RequestsPerSecond float64
	Limit             int
	Burst             int
}

// CacheConfig sets the suggestion cache TTLs.
type CacheConfig struct {
	MemoryTTL     time.Duration
	PersistentTTL time.Duration
}

// PipelineConfig tunes the enrichment runs.
type PipelineConfig struct {
	RecoveryPolicy      string
	RetryDelay          time.Duration
	ControlPollInterval time.Duration
	StaleAfter          time.Duration
	MaxConcurrency      int
	MaxRetries          int
}

// ServerConfig configures the HTTP polling API.
type ServerConfig struct {
	Addr string
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// DefaultDatabasePath returns the database location used when none is configured.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "enrich.db"
	}
	return filepath.Join(home, ".local", "share", "enrich", "enrich.db")
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath())

	v.SetDefault("search.base_url", "https://graph.facebook.com")
	v.SetDefault("search.api_version", "v19.0")
	v.SetDefault("search.limit", 25)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.requests_per_second", 5.0)
	v.SetDefault("search.burst", 5)

	v.SetDefault("cache.memory_ttl", 5*time.Minute)
	v.SetDefault("cache.persistent_ttl", 24*time.Hour)

	v.SetDefault("pipeline.max_concurrency", 5)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_delay", 2*time.Second)
	v.SetDefault("pipeline.control_poll_interval", 2*time.Second)
	// Jobs whose heartbeat is older than stale_after are treated as abandoned
	// and handed to recovery_policy.
	v.SetDefault("pipeline.recovery_policy", "pause")
	v.SetDefault("pipeline.stale_after", 10*time.Second)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load materialises the configuration held by v and validates it.
// The access token is not required here; commands that search check it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Search: LoadSearchConfig(v),
		Cache: CacheConfig{
			MemoryTTL:     v.GetDuration("cache.memory_ttl"),
			PersistentTTL: v.GetDuration("cache.persistent_ttl"),
		},
		Pipeline: PipelineConfig{
			MaxConcurrency:      v.GetInt("pipeline.max_concurrency"),
			MaxRetries:          v.GetInt("pipeline.max_retries"),
			RetryDelay:          v.GetDuration("pipeline.retry_delay"),
			ControlPollInterval: v.GetDuration("pipeline.control_poll_interval"),
			RecoveryPolicy:      v.GetString("pipeline.recovery_policy"),
			StaleAfter:          v.GetDuration("pipeline.stale_after"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is empty", common.ErrInvalidConfig)
	case c.Pipeline.MaxConcurrency < 1:
		return fmt.Errorf("%w: pipeline.max_concurrency must be at least 1", common.ErrInvalidConfig)
	case c.Pipeline.MaxRetries < 1:
		return fmt.Errorf("%w: pipeline.max_retries must be at least 1", common.ErrInvalidConfig)
	case c.Pipeline.RecoveryPolicy != "pause" && c.Pipeline.RecoveryPolicy != "resume":
		return fmt.Errorf("%w: pipeline.recovery_policy must be pause or resume, got %q", common.ErrInvalidConfig, c.Pipeline.RecoveryPolicy)
	case c.Pipeline.StaleAfter <= c.Pipeline.ControlPollInterval:
		return fmt.Errorf("%w: pipeline.stale_after must exceed pipeline.control_poll_interval", common.ErrInvalidConfig)
	case c.Cache.MemoryTTL <= 0 || c.Cache.PersistentTTL <= 0:
		return fmt.Errorf("%w: cache TTLs must be positive", common.ErrInvalidConfig)
	case c.Search.Limit < 1:
		return fmt.Errorf("%w: search.limit must be at least 1", common.ErrInvalidConfig)
	case c.Search.RequestsPerSecond <= 0:
		return fmt.Errorf("%w: search.requests_per_second must be positive", common.ErrInvalidConfig)
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: logging.format must be console or json", common.ErrInvalidConfig)
	}
	return nil
}

// ExpandPath resolves a leading ~ to the home directory, then expands $VARS.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + strings.TrimPrefix(path, "~")
		}
	}
	return os.ExpandEnv(path)
}
