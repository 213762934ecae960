// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Mirror modes.
const (
	MirrorAsync = "async"
	MirrorSync  = "sync"
)

// Config groups the application configuration.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Search    SearchConfig
	Mirror    MirrorConfig
	Reconcile ReconcileConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Env      string // development, staging, production
	Port     int
	LogLevel string
}

// IsDevelopment reports whether the service runs in development mode.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the listen address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// DBConfig configures the primary store.
type DBConfig struct {
	Store    string // postgres or memory
	URL      string
	MaxConns int32
	Migrate  bool
}

// SearchConfig configures the search indexes.
type SearchConfig struct {
	IndexDir string // empty keeps indexes in memory
}

// MirrorConfig configures index mirroring.
type MirrorConfig struct {
	Mode       string // async or sync
	Shards     int
	QueueSize  int
	Timeout    time.Duration
	JournalDir string // empty keeps the failure journal in memory
}

// ReconcileConfig configures repair and reindex.
type ReconcileConfig struct {
	Interval  time.Duration // 0 disables periodic repair
	Workers   int
	BatchSize int
}

// Load reads a .env file when present, then the environment. Environment
// variables win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.AllowEmptyEnv(true) // INDEX_DIR= and JOURNAL_DIR= select in-memory mode
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			Port:     v.GetInt("APP_PORT"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			Store:    strings.ToLower(v.GetString("STORE")),
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
			Migrate:  v.GetBool("DB_MIGRATE"),
		},
		Search: SearchConfig{
			IndexDir: v.GetString("INDEX_DIR"),
		},
		Mirror: MirrorConfig{
			Mode:       strings.ToLower(v.GetString("MIRROR_MODE")),
			Shards:     v.GetInt("MIRROR_SHARDS"),
			QueueSize:  v.GetInt("MIRROR_QUEUE_SIZE"),
			Timeout:    v.GetDuration("MIRROR_TIMEOUT"),
			JournalDir: v.GetString("JOURNAL_DIR"),
		},
		Reconcile: ReconcileConfig{
			Interval:  v.GetDuration("RECONCILE_INTERVAL"),
			Workers:   v.GetInt("REINDEX_WORKERS"),
			BatchSize: v.GetInt("REINDEX_BATCH_SIZE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("INDEX_DIR", "data/index")

	v.SetDefault("MIRROR_MODE", MirrorAsync)
	v.SetDefault("MIRROR_SHARDS", 8)
	v.SetDefault("MIRROR_QUEUE_SIZE", 1024)
	v.SetDefault("MIRROR_TIMEOUT", "10s")
	v.SetDefault("JOURNAL_DIR", "data/journal")

	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("REINDEX_WORKERS", 4)
	v.SetDefault("REINDEX_BATCH_SIZE", 500)
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.DB.Store {
	case StorePostgres:
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE %q (want %s or %s)", c.DB.Store, StorePostgres, StoreMemory)
	}

	switch c.Mirror.Mode {
	case MirrorAsync, MirrorSync:
	default:
		return fmt.Errorf("unknown MIRROR_MODE %q (want %s or %s)", c.Mirror.Mode, MirrorAsync, MirrorSync)
	}

	if c.Mirror.Timeout <= 0 {
		return fmt.Errorf("MIRROR_TIMEOUT must be positive")
	}
	if c.Reconcile.Interval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative")
	}
	return nil
}
