// Package config loads csync's YAML configuration, with environment
// variable overrides and built-in defaults layered on top, the same
// singleton-plus-overrides shape the teacher's own config package uses.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Client  ClientConfig  `yaml:"client"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// BrokerConfig configures csyncd, the realtime publish/subscribe broker.
type BrokerConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	AdminAddr      string `yaml:"admin_addr"`
	AcceptTimeoutMs int   `yaml:"accept_timeout_ms"`
}

// ClientConfig configures the csync daemon: which broker to talk to and
// which resource kinds to sync.
type ClientConfig struct {
	ServerAddr   string     `yaml:"server_addr"`
	Password     string     `yaml:"password"`
	Device       string     `yaml:"device"`
	Peers        []string   `yaml:"peers"`
	RemotePollMs int        `yaml:"remote_poll_ms"`
	Text         KindConfig `yaml:"text"`
	Image        KindConfig `yaml:"image"`
	File         KindConfig `yaml:"file"`
}

// KindConfig is the per-resource-kind tuning a Client applies, mirroring
// the Rust SyncConfig's per-kind enable/readonly/interval fields.
type KindConfig struct {
	Enabled           bool `yaml:"enabled"`
	ClipboardPollMs   int  `yaml:"clipboard_poll_ms"`
	RemoteReadOnly    bool `yaml:"remote_readonly"`
	ClipboardReadOnly bool `yaml:"clipboard_readonly"`
}

// HistoryConfig configures the optional history-mode resource store.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ListenAddr   string `yaml:"listen_addr"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	RedisAddr    string `yaml:"redis_addr"`
	TokenTTLSec  int    `yaml:"token_ttl_sec"`
	BlobCacheTTL int    `yaml:"blob_cache_ttl_sec"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton Config, loading it from
// CONFIG_PATH (default "config.yaml") on first call.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Broker.Addr = getEnv("CSYNC_BROKER_ADDR", c.Broker.Addr)
	c.Broker.Password = getEnv("CSYNC_BROKER_PASSWORD", c.Broker.Password)
	c.Broker.AdminAddr = getEnv("CSYNC_BROKER_ADMIN_ADDR", c.Broker.AdminAddr)

	c.Client.ServerAddr = getEnv("CSYNC_SERVER_ADDR", c.Client.ServerAddr)
	c.Client.Password = getEnv("CSYNC_PASSWORD", c.Client.Password)
	c.Client.Device = getEnv("CSYNC_DEVICE", c.Client.Device)

	c.History.PostgresDSN = getEnv("CSYNC_POSTGRES_DSN", c.History.PostgresDSN)
	c.History.RedisAddr = getEnv("CSYNC_REDIS_ADDR", c.History.RedisAddr)

	c.Logging.Level = getEnv("CSYNC_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("CSYNC_LOG_FORMAT", c.Logging.Format)

	if v := getEnvInt("CSYNC_REMOTE_POLL_MS", 0); v > 0 {
		c.Client.RemotePollMs = v
	}
}

func (c *Config) applyDefaults() {
	if c.Broker.Addr == "" {
		c.Broker.Addr = "0.0.0.0:7703"
	}
	if c.Broker.AcceptTimeoutMs == 0 {
		c.Broker.AcceptTimeoutMs = 5000
	}

	if c.Client.RemotePollMs == 0 {
		c.Client.RemotePollMs = 500
	}
	applyKindDefaults(&c.Client.Text, 300)
	applyKindDefaults(&c.Client.Image, 1000)
	applyKindDefaults(&c.Client.File, 2000)

	if c.History.TokenTTLSec == 0 {
		c.History.TokenTTLSec = 3600
	}
	if c.History.BlobCacheTTL == 0 {
		c.History.BlobCacheTTL = 600
	}
	if c.History.ListenAddr == "" {
		c.History.ListenAddr = "0.0.0.0:7704"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// applyKindDefaults only fills the poll interval. Enabled is left exactly
// as YAML/env set it (defaulting a bool to true from its zero value is
// indistinguishable from an explicit "false" in the config file, so unlike
// the numeric fields this one is never silently overridden) — an operator
// who wants text/image/file sync on must say so in config.yaml.
func applyKindDefaults(k *KindConfig, pollMsDefault int) {
	if k.ClipboardPollMs == 0 {
		k.ClipboardPollMs = pollMsDefault
	}
}

// RemotePollInterval returns the client's remote poll interval as a
// time.Duration, for direct use by internal/syncengine.Config.
func (c *ClientConfig) RemotePollInterval() time.Duration {
	return time.Duration(c.RemotePollMs) * time.Millisecond
}

func (k KindConfig) ClipboardPollInterval() time.Duration {
	return time.Duration(k.ClipboardPollMs) * time.Millisecond
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
