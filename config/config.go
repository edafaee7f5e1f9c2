// Package config provides loading and parsing of modulekit.yaml configuration
// files. The configuration selects the activation store backend, the module
// catalog and the management server settings of the modulekitd binary.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/modulekit"
	"github.com/zero-day-ai/modulekit/activation/etcdstore"
)

// Store backend names.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreEtcd   = "etcd"
)

// Environment variables that override file values.
const (
	EnvStoreType     = "MODULEKIT_STORE_TYPE"
	EnvStorePath     = "MODULEKIT_STORE_PATH"
	EnvRedisURL      = "MODULEKIT_REDIS_URL"
	EnvEtcdEndpoints = "MODULEKIT_ETCD_ENDPOINTS"
	EnvAddress       = "MODULEKIT_ADDRESS"
	EnvLogLevel      = "MODULEKIT_LOG_LEVEL"
)

// Config represents a modulekit.yaml configuration file.
type Config struct {
	Store StoreConfig `yaml:"store"`

	// Catalog is an optional path to a YAML module catalog. When empty the
	// built-in catalog is used.
	Catalog string `yaml:"catalog,omitempty"`

	Server *ServerConfig `yaml:"server,omitempty"`
	Log    *LogConfig    `yaml:"log,omitempty"`
}

// StoreConfig selects and configures the activation store.
type StoreConfig struct {
	// Type is one of memory, file, redis or etcd.
	// Default: memory
	Type string `yaml:"type,omitempty"`

	File  *FileConfig  `yaml:"file,omitempty"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
	Etcd  *EtcdConfig  `yaml:"etcd,omitempty"`
}

// FileConfig configures the YAML file store.
type FileConfig struct {
	// Default: modules.state.yaml
	Path string `yaml:"path,omitempty"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	// Default: redis://localhost:6379
	URL string `yaml:"url,omitempty"`

	// KeyPrefix namespaces the activation hash.
	// Default: "modulekit" (resulting in "modulekit:activation")
	KeyPrefix string `yaml:"key_prefix,omitempty"`

	// ConnectTimeout is a Go duration string (e.g. "5s").
	// Default: 5s
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
}

// EtcdConfig configures the etcd store.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`

	// Default: modulekit
	Namespace string `yaml:"namespace,omitempty"`

	// DialTimeout is a Go duration string.
	// Default: 5s
	DialTimeout string `yaml:"dial_timeout,omitempty"`

	TLS *etcdstore.TLSConfig `yaml:"tls,omitempty"`
}

// ServerConfig configures the management gRPC server.
type ServerConfig struct {
	// Default: :50061
	Address string `yaml:"address,omitempty"`

	// ShutdownTimeout bounds graceful stop.
	// Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level,omitempty"`

	// Format is json or text.
	// Default: json
	Format string `yaml:"format,omitempty"`
}

// GetType returns the store type or the default value.
func (s StoreConfig) GetType() string {
	if s.Type == "" {
		return StoreMemory
	}
	return strings.ToLower(s.Type)
}

// GetPath returns the state file path or the default value.
func (f *FileConfig) GetPath() string {
	if f == nil || f.Path == "" {
		return "modules.state.yaml"
	}
	return f.Path
}

// GetURL returns the Redis URL or the default value.
func (r *RedisConfig) GetURL() string {
	if r == nil || r.URL == "" {
		return "redis://localhost:6379"
	}
	return r.URL
}

// GetKeyPrefix returns the Redis key prefix or the default value.
func (r *RedisConfig) GetKeyPrefix() string {
	if r == nil || r.KeyPrefix == "" {
		return "modulekit"
	}
	return r.KeyPrefix
}

// GetConnectTimeout parses the connect timeout and returns a duration.
// Returns the default value if not set or invalid.
func (r *RedisConfig) GetConnectTimeout() time.Duration {
	if r == nil {
		return 5 * time.Second
	}
	return parseDuration(r.ConnectTimeout, 5*time.Second)
}

// GetNamespace returns the etcd namespace or the default value.
func (e *EtcdConfig) GetNamespace() string {
	if e == nil || e.Namespace == "" {
		return "modulekit"
	}
	return e.Namespace
}

// GetDialTimeout parses the dial timeout and returns a duration.
// Returns the default value if not set or invalid.
func (e *EtcdConfig) GetDialTimeout() time.Duration {
	if e == nil {
		return 5 * time.Second
	}
	return parseDuration(e.DialTimeout, 5*time.Second)
}

// GetAddress returns the listen address or the default value.
func (s *ServerConfig) GetAddress() string {
	if s == nil || s.Address == "" {
		return ":50061"
	}
	return s.Address
}

// GetShutdownTimeout parses the shutdown timeout and returns a duration.
// Returns the default value if not set or invalid.
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	if s == nil {
		return 10 * time.Second
	}
	return parseDuration(s.ShutdownTimeout, 10*time.Second)
}

// GetLevel returns the configured slog level, info when unset or unknown.
func (l *LogConfig) GetLevel() slog.Level {
	if l == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// GetFormat returns the log format or the default value.
func (l *LogConfig) GetFormat() string {
	if l == nil || l.Format == "" {
		return "json"
	}
	return strings.ToLower(l.Format)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate checks the configuration for values no default can repair.
func (c *Config) Validate() error {
	switch c.Store.GetType() {
	case StoreMemory, StoreFile, StoreRedis:
	case StoreEtcd:
		if c.Store.Etcd == nil || len(c.Store.Etcd.Endpoints) == 0 {
			return fmt.Errorf("%w: etcd store requires at least one endpoint", modulekit.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store type %q", modulekit.ErrInvalidConfig, c.Store.Type)
	}
	if c.Log != nil && c.Log.Format != "" {
		if f := c.Log.GetFormat(); f != "json" && f != "text" {
			return fmt.Errorf("%w: unknown log format %q", modulekit.ErrInvalidConfig, c.Log.Format)
		}
	}
	return nil
}

// ApplyEnv overrides file values with MODULEKIT_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvStoreType); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		if c.Store.File == nil {
			c.Store.File = &FileConfig{}
		}
		c.Store.File.Path = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		if c.Store.Redis == nil {
			c.Store.Redis = &RedisConfig{}
		}
		c.Store.Redis.URL = v
	}
	if v := os.Getenv(EnvEtcdEndpoints); v != "" {
		if c.Store.Etcd == nil {
			c.Store.Etcd = &EtcdConfig{}
		}
		var endpoints []string
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				endpoints = append(endpoints, e)
			}
		}
		c.Store.Etcd.Endpoints = endpoints
	}
	if v := os.Getenv(EnvAddress); v != "" {
		if c.Server == nil {
			c.Server = &ServerConfig{}
		}
		c.Server.Address = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		if c.Log == nil {
			c.Log = &LogConfig{}
		}
		c.Log.Level = v
	}
}

// FromEnv returns a configuration built from defaults and the environment
// alone.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a modulekit.yaml file from the given path, applies
// environment overrides and validates the result. If the path is a directory,
// it looks for modulekit.yaml or modulekit.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{"modulekit.yaml", "modulekit.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no modulekit.yaml or modulekit.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Catalog != "" && !filepath.IsAbs(cfg.Catalog) {
		cfg.Catalog = filepath.Join(filepath.Dir(configPath), cfg.Catalog)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
