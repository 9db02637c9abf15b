// Package procconfig loads the process-level configuration: where
// descriptors live, how validation runs at startup, cache defaults, and the
// HTTP server's listen address. This is distinct from internal/config,
// which models the descriptors (databases/queries/endpoints) themselves.
package procconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Source selects where Database/Query/Endpoint descriptors are read from.
type Source string

const (
	SourceFilesystem Source = "filesystem"
	SourceStore      Source = "store"
)

// Config is the top-level process configuration, populated from a config
// file (if present) and environment variables, following the teacher's
// viper AutomaticEnv + SetEnvKeyReplacer(".", "_") convention.
type Config struct {
	Config     ConfigPlaneConfig `mapstructure:"config"`
	Validation ValidationConfig  `mapstructure:"validation"`
	Cache      CacheDefaults     `mapstructure:"cache"`
	Server     ServerConfig      `mapstructure:"server"`
	Store      StoreConfig       `mapstructure:"store"`
	Log        LogConfig         `mapstructure:"log"`
}

// ConfigPlaneConfig controls descriptor discovery (spec.md §6 "config file
// conventions").
type ConfigPlaneConfig struct {
	Source      Source   `mapstructure:"source"`
	Directories []string `mapstructure:"directories"`
	Patterns    Patterns `mapstructure:"patterns"`
}

type Patterns struct {
	Databases string `mapstructure:"databases"`
	Queries   string `mapstructure:"queries"`
	Endpoints string `mapstructure:"endpoints"`
}

// ValidationConfig controls registry publish behavior.
type ValidationConfig struct {
	RunOnStartup bool `mapstructure:"run_on_startup"`
	ValidateOnly bool `mapstructure:"validate_only"`
}

// CacheDefaults seeds query-descriptor cache specs that don't set their own
// values explicitly.
type CacheDefaults struct {
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	MaxSize    int    `mapstructure:"max_size"`
	Strategy   string `mapstructure:"strategy"`
}

// ServerConfig is the HTTP listen configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StoreConfig configures the store-backed descriptor persistence layer
// (used when Config.Source == SourceStore; with a filesystem source it is
// opened only when a DSN is set, as the migration and sync target).
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN    string `mapstructure:"dsn"`
}

// LogConfig mirrors internal/logging.Config, kept as plain mapstructure
// fields so viper can populate it directly.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config.source", "filesystem")
	v.SetDefault("config.directories", []string{"./config"})
	v.SetDefault("config.patterns.databases", "databases/*.yaml")
	v.SetDefault("config.patterns.queries", "queries/*.yaml")
	v.SetDefault("config.patterns.endpoints", "endpoints/*.yaml")

	v.SetDefault("validation.run_on_startup", true)
	v.SetDefault("validation.validate_only", false)

	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.strategy", "LRU")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

// Load reads configPath (if non-empty), overlays environment variables
// (CORDAL_SERVER_PORT etc, `.`->`_`), and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("cordal")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants spec.md §6 relies on.
func (c *Config) Validate() error {
	switch c.Config.Source {
	case SourceFilesystem, SourceStore:
	default:
		return fmt.Errorf("config.source must be %q or %q, got %q", SourceFilesystem, SourceStore, c.Config.Source)
	}
	if c.Config.Source == SourceFilesystem && len(c.Config.Directories) == 0 {
		return fmt.Errorf("config.directories must not be empty when config.source=filesystem")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Config.Source == SourceStore && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set when config.source=store")
	}
	return nil
}

// Addr returns the host:port the HTTP server should bind to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
