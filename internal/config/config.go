// Package config loads herald settings from an optional YAML file and
// HERALD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds the configuration of the herald binary.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
		// Path is where the bridge endpoint is mounted.
		Path string `mapstructure:"path"`
	} `mapstructure:"server"`
	Bridge struct {
		URL                  string        `mapstructure:"url"`
		SecretKey            string        `mapstructure:"secret_key"`
		StrictAuthentication bool          `mapstructure:"strict_authentication"`
		Timeout              time.Duration `mapstructure:"timeout"`
	} `mapstructure:"bridge"`
	Store struct {
		// Driver is one of memory, sqlite, postgres, redis, mongo.
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
		// Database is the Mongo database name or the Redis key prefix.
		Database string `mapstructure:"database"`
	} `mapstructure:"store"`
	Queue struct {
		// Driver defaults to the store driver.
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"queue"`
	Worker struct {
		Concurrency  int           `mapstructure:"concurrency"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"worker"`
	Retry struct {
		MaxAttempts int           `mapstructure:"max_attempts"`
		Backoff     time.Duration `mapstructure:"backoff"`
		MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	} `mapstructure:"retry"`
	Engine struct {
		// OutputValidation is lenient or strict.
		OutputValidation string `mapstructure:"output_validation"`
	} `mapstructure:"engine"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"metrics"`
	Tracing struct {
		Endpoint string `mapstructure:"endpoint"`
		Insecure bool   `mapstructure:"insecure"`
	} `mapstructure:"tracing"`
}

var drivers = []string{"memory", "sqlite", "postgres", "redis", "mongo"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":4000")
	v.SetDefault("server.path", "/api/novu")
	v.SetDefault("bridge.url", "http://localhost:4000/api/novu")
	v.SetDefault("bridge.secret_key", "")
	v.SetDefault("bridge.strict_authentication", false)
	v.SetDefault("bridge.timeout", 30*time.Second)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.database", "")
	v.SetDefault("queue.driver", "")
	v.SetDefault("queue.dsn", "")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff", time.Second)
	v.SetDefault("retry.max_backoff", time.Minute)
	v.SetDefault("engine.output_validation", "lenient")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
}

// New returns a viper instance with herald's defaults and environment
// binding. Keys map to HERALD_<SECTION>_<KEY>, e.g. HERALD_STORE_DRIVER.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("herald")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if not empty) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = cfg.Store.Driver
		if cfg.Queue.DSN == "" {
			cfg.Queue.DSN = cfg.Store.DSN
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	var errs []error
	if !knownDriver(c.Store.Driver) {
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if !knownDriver(c.Queue.Driver) {
		errs = append(errs, fmt.Errorf("queue.driver: unknown driver %q", c.Queue.Driver))
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn: required for driver %q", c.Store.Driver))
	}
	switch c.Engine.OutputValidation {
	case "lenient", "strict":
	default:
		errs = append(errs, fmt.Errorf("engine.output_validation: must be lenient or strict, got %q", c.Engine.OutputValidation))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("worker.concurrency: must be at least 1"))
	}
	return errors.Join(errs...)
}

func knownDriver(d string) bool {
	for _, known := range drivers {
		if d == known {
			return true
		}
	}
	return false
}

// Logger builds the process logger from the log settings.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
