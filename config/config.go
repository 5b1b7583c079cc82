// Package config loads chatmand process configuration from TOML.
// Defaults are applied first, then the file overrides them, so a
// missing or partial file still yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values can be written as
// strings like "30s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for toml.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type ServerConfig struct {
	Addr       string `toml:"addr"`
	RequestLog bool   `toml:"request_log"`
}

type EngineConfig struct {
	MaxMessageLength   int      `toml:"max_message_length"`
	MaxMailboxSize     int      `toml:"max_mailbox_size"`
	MaxConcurrentSends int      `toml:"max_concurrent_sends"`
	ShutdownTimeout    Duration `toml:"shutdown_timeout"`
}

// SnapshotConfig selects and configures the durable snapshot backend.
// Backend is one of: "none", "bolt", "postgres", "mongo", "s3", "gcs".
type SnapshotConfig struct {
	Backend  string   `toml:"backend"`
	Interval Duration `toml:"interval"`

	// bolt
	Path string `toml:"path"`

	// postgres
	DSN   string `toml:"dsn"`
	Table string `toml:"table"`

	// mongo
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`

	// s3 / gcs
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`

	// s3 only
	PathStyle bool   `toml:"path_style"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	RoleARN   string `toml:"role_arn"`

	// gcs only
	CredentialsFile string `toml:"credentials_file"`
}

// RedisConfig configures the event transport. An empty Addr disables
// it and events go to the noop transport.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type TelemetryConfig struct {
	Tracing bool `toml:"tracing"`
	Metrics bool `toml:"metrics"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Engine    EngineConfig    `toml:"engine"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Redis     RedisConfig     `toml:"redis"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       ":8080",
			RequestLog: true,
		},
		Engine: EngineConfig{
			ShutdownTimeout: Duration{30 * time.Second},
		},
		Snapshot: SnapshotConfig{
			Backend:  "none",
			Interval: Duration{5 * time.Minute},
			Path:     "chatman.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file
// is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	switch c.Snapshot.Backend {
	case "", "none", "bolt", "postgres", "mongo", "s3", "gcs":
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}

	switch c.Snapshot.Backend {
	case "postgres":
		if c.Snapshot.DSN == "" {
			return fmt.Errorf("snapshot backend %q requires dsn", c.Snapshot.Backend)
		}
	case "mongo":
		if c.Snapshot.URI == "" {
			return fmt.Errorf("snapshot backend %q requires uri", c.Snapshot.Backend)
		}
	case "s3", "gcs":
		if c.Snapshot.Bucket == "" {
			return fmt.Errorf("snapshot backend %q requires bucket", c.Snapshot.Backend)
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}
