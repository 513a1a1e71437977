package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to upper-cased keys, e.g. SIGNALBOX_CLAIMS_BACKEND.
	EnvPrefix = "SIGNALBOX"
	// FileName is the config file searched for in the working directory.
	FileName = "signalbox.yaml"

	BackendMarker = "marker"
	BackendSQLite = "sqlite"

	OrderTimestamp = "timestamp"
	OrderDirectory = "directory"
)

// Config is the full signalbox configuration.
type Config struct {
	Root    string        `mapstructure:"root"`
	Client  string        `mapstructure:"client"`
	Prefix  string        `mapstructure:"prefix"`
	Claims  ClaimsConfig  `mapstructure:"claims"`
	Enqueue EnqueueConfig `mapstructure:"enqueue"`
	Drain   DrainConfig   `mapstructure:"drain"`
	Logging LoggingConfig `mapstructure:"logging"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// ClaimsConfig selects how incoming items are claimed.
type ClaimsConfig struct {
	// Backend is "marker" (.lock files next to the payload) or "sqlite".
	Backend string `mapstructure:"backend"`
	// SQLitePath is the claims database. Empty means <root>/.signalbox/claims.db.
	SQLitePath string `mapstructure:"sqlite_path"`
}

type EnqueueConfig struct {
	MaxCollisionRetries int `mapstructure:"max_collision_retries"`
}

type DrainConfig struct {
	// Order is "timestamp" (numeric stem order) or "directory" (listing order).
	Order string `mapstructure:"order"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WatchConfig struct {
	Poll         bool          `mapstructure:"poll"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Root: ".",
		Claims: ClaimsConfig{
			Backend: BackendMarker,
		},
		Enqueue: EnqueueConfig{
			MaxCollisionRetries: 8,
		},
		Drain: DrainConfig{
			Order: OrderTimestamp,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			PollInterval: 500 * time.Millisecond,
		},
	}
}

// SetDefaults registers every key with its default so that env lookups and
// Unmarshal see it.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("root", defaults.Root)
	v.SetDefault("client", defaults.Client)
	v.SetDefault("prefix", defaults.Prefix)

	v.SetDefault("claims.backend", defaults.Claims.Backend)
	v.SetDefault("claims.sqlite_path", defaults.Claims.SQLitePath)

	v.SetDefault("enqueue.max_collision_retries", defaults.Enqueue.MaxCollisionRetries)

	v.SetDefault("drain.order", defaults.Drain.Order)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetDefault("watch.poll", defaults.Watch.Poll)
	v.SetDefault("watch.poll_interval", defaults.Watch.PollInterval)
}

// Init prepares v: defaults, SIGNALBOX_* environment variables and the config
// file. An explicit configFile must exist; otherwise ./signalbox.yaml is used
// when present.
func Init(v *viper.Viper, configFile string) error {
	InitEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// InitEnv registers defaults and SIGNALBOX_* environment lookups without
// reading any file.
func InitEnv(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Short aliases; SIGNALBOX_LOGGING_* still wins when both are set.
	_ = v.BindEnv("logging.level", EnvPrefix+"_LOG_LEVEL")
	_ = v.BindEnv("logging.format", EnvPrefix+"_LOG_FORMAT")
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ClaimsDBPath returns the SQLite claims database path for this config.
func (c *Config) ClaimsDBPath() string {
	if c.Claims.SQLitePath != "" {
		return c.Claims.SQLitePath
	}
	return filepath.Join(c.Root, ".signalbox", "claims.db")
}

// WriteConfig writes the mailbox-identifying subset of cfg to path as YAML.
// An existing file is only replaced when force is set.
func WriteConfig(path string, cfg *Config, force bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	out := viper.New()
	out.Set("root", cfg.Root)
	out.Set("client", cfg.Client)
	if cfg.Prefix != "" {
		out.Set("prefix", cfg.Prefix)
	}
	out.Set("claims.backend", cfg.Claims.Backend)
	if cfg.Claims.SQLitePath != "" {
		out.Set("claims.sqlite_path", cfg.Claims.SQLitePath)
	}

	if force {
		return out.WriteConfigAs(path)
	}
	if err := out.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
		return err
	}
	return nil
}
