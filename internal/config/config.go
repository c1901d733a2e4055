// Package config loads and validates progress service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PROGRESS_SERVER_PORT.
const EnvPrefix = "PROGRESS"

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Pub/Sub backends.
const (
	PubSubNone   = "none"
	PubSubMemory = "memory"
	PubSubGCP    = "gcp"
)

// Snapshot backends.
const (
	SnapshotNone   = "none"
	SnapshotMemory = "memory"
	SnapshotLocal  = "local"
	SnapshotGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Hub      HubConfig      `mapstructure:"hub"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins restricts push-channel upgrades. Empty means same origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MonitorConfig configures the watching client.
type MonitorConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PullTimeout    time.Duration `mapstructure:"pull_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ApplyLatePulls bool          `mapstructure:"apply_late_pulls"`
	DiscardStale   bool          `mapstructure:"discard_stale"`
	BarWidth       int           `mapstructure:"bar_width"`
}

// HubConfig paces sink deliveries.
type HubConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	SinkTimeout   time.Duration `mapstructure:"sink_timeout"`
}

// StorageConfig selects the report repository.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	Key      string `mapstructure:"key"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig selects where reports are fanned out: nowhere, an in-process
// log for development, or Google Cloud Pub/Sub.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	// Retain bounds the in-process log of the memory backend.
	Retain int `mapstructure:"retain"`
}

// Enabled reports whether a publisher backend is selected.
func (c PubSubConfig) Enabled() bool {
	return c.Backend != "" && c.Backend != PubSubNone
}

// SnapshotConfig selects where latest.json snapshots are written.
type SnapshotConfig struct {
	Backend      string `mapstructure:"backend"`
	Dir          string `mapstructure:"dir"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	CacheControl string `mapstructure:"cache_control"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. An empty path searches for
// config.yaml in the working directory, /etc/progressmon and
// $HOME/.progressmon; a missing file is not an error in that case.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/progressmon/")
		v.AddConfigPath("$HOME/.progressmon")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("monitor.server_url", "http://localhost:8080")
	v.SetDefault("monitor.poll_interval", "5s")
	v.SetDefault("monitor.pull_timeout", "10s")
	v.SetDefault("monitor.reconnect_delay", "1s")
	v.SetDefault("monitor.apply_late_pulls", true)
	v.SetDefault("monitor.discard_stale", false)
	v.SetDefault("monitor.bar_width", 40)
	v.SetDefault("hub.flush_interval", "250ms")
	v.SetDefault("hub.sink_timeout", "5s")
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.table", "progress_reports")
	v.SetDefault("storage.key", "default")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("storage.min_conns", 0)
	v.SetDefault("pubsub.backend", PubSubNone)
	v.SetDefault("pubsub.retain", 128)
	v.SetDefault("pubsub.topic_name", "progress-updates")
	v.SetDefault("snapshot.backend", SnapshotNone)
	v.SetDefault("snapshot.dir", "data/progress")
	v.SetDefault("snapshot.prefix", "progress")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be > 0")
	}
	if c.Monitor.PullTimeout <= 0 {
		return fmt.Errorf("monitor.pull_timeout must be > 0")
	}
	if c.Monitor.ServerURL != "" {
		u, err := url.Parse(c.Monitor.ServerURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("monitor.server_url must be an http(s) URL, got %q", c.Monitor.ServerURL)
		}
	}
	if c.Hub.FlushInterval < 0 {
		return fmt.Errorf("hub.flush_interval must be >= 0")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case "", PubSubNone:
	case PubSubMemory:
		if c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.topic_name must be set when pubsub.backend is memory")
		}
	case PubSubGCP:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.backend is gcp")
		}
	default:
		return fmt.Errorf("pubsub.backend %q is not supported", c.PubSub.Backend)
	}
	switch c.Snapshot.Backend {
	case SnapshotNone, SnapshotMemory:
	case SnapshotLocal:
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("snapshot.dir must be set when snapshot.backend is local")
		}
	case SnapshotGCS:
		if c.Snapshot.Bucket == "" {
			return fmt.Errorf("snapshot.bucket must be set when snapshot.backend is gcs")
		}
	default:
		return fmt.Errorf("snapshot.backend %q is not supported", c.Snapshot.Backend)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
