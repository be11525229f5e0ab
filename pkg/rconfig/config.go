// Package rconfig provides configuration management for the coordinator and
// its CLI.
package rconfig

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the coordinator process.
type Config struct {
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	KVStore     KVStoreConfig     `mapstructure:"kvstore"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Log         LogConfig         `mapstructure:"log"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// CoordinatorConfig holds the listen address and replica identity.
type CoordinatorConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	ReplicaId  uint32 `mapstructure:"replica_id"`
}

// KVStoreConfig selects and configures one of the kvstore backends.
type KVStoreConfig struct {
	// Type is "local", "gorm", or "cos".
	Type string `mapstructure:"type"`

	// LocalPath is the root directory for the local backend.
	LocalPath string `mapstructure:"local_path"`

	// DSN configures the gorm backend (driver + data source name).
	DSN    string `mapstructure:"dsn"`
	Driver string `mapstructure:"driver"` // mysql, postgres, sqlite

	// COS configures the Tencent COS backend.
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
}

// PersistenceConfig tunes the background worker pool that drains dirty
// repositories to the KV store.
type PersistenceConfig struct {
	WorkerCount   int `mapstructure:"worker_count"`
	FlushInterval int `mapstructure:"flush_interval"` // in seconds
	QueueSize     int `mapstructure:"queue_size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// TelemetryConfig optionally overrides rtelemetry's environment-variable
// defaults from the coordinator's own config file.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
}

// Load reads configuration from the given file path, falling back to
// standard locations and defaults when configPath is empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/crdb")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("rconfig: read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("rconfig: unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rconfig: validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes, useful for testing.
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("rconfig: read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("rconfig: unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("coordinator.listen_addr", ":8980")
	v.SetDefault("coordinator.replica_id", 0)

	v.SetDefault("kvstore.type", "local")
	v.SetDefault("kvstore.local_path", "./data/repos")
	v.SetDefault("kvstore.driver", "sqlite")

	v.SetDefault("persistence.worker_count", 4)
	v.SetDefault("persistence.flush_interval", 2)
	v.SetDefault("persistence.queue_size", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "crdb-coordinator")
}

// Validate checks the configuration is internally consistent. Backend-
// specific field requirements (DSN, bucket credentials, and so on) are
// delegated to the kvstore package's own factory validation, matching how
// the storage package owns its own config checks.
func (c *Config) Validate() error {
	switch c.KVStore.Type {
	case "local", "gorm", "cos":
	default:
		return fmt.Errorf("unsupported kvstore type: %s", c.KVStore.Type)
	}

	if c.Persistence.WorkerCount < 1 {
		return fmt.Errorf("persistence worker count must be at least 1")
	}

	return nil
}
