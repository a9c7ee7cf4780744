package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// CurrentVersion of the config file.
const CurrentVersion = 1

// Config represents the entire engine configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Scoring    Scoring    `koanf:"scoring"`
	Policy     Policy     `koanf:"policy"`
	Server     Server     `koanf:"server"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Log database queries at debug level.
	LogQueries bool `koanf:"log_queries"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration for the cache
// invalidation channel.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Scoring contains batch processing configuration.
type Scoring struct {
	// Maximum events accepted in one batch.
	MaxBatchSize int `koanf:"max_batch_size"`
	// Maximum subject partitions processed in parallel.
	Workers int `koanf:"workers"`
	// Per-event persistence timeout in milliseconds.
	OperationTimeout int `koanf:"operation_timeout"`
	// Weight and policy cache TTL in seconds.
	CacheTTL int `koanf:"cache_ttl"`
}

// Policy contains directive dispatch configuration.
type Policy struct {
	// Moderation collaborator webhook URL.
	DispatchURL string `koanf:"dispatch_url"`
	// Maximum delivery attempts per directive.
	DispatchRetries uint64 `koanf:"dispatch_retries"`
	// Initial retry delay in milliseconds.
	DispatchDelay int `koanf:"dispatch_delay"`
	// Maximum retry delay in milliseconds.
	DispatchMaxDelay int `koanf:"dispatch_max_delay"`
	// Maximum directives delivered concurrently.
	MaxConcurrentDispatches int64 `koanf:"max_concurrent_dispatches"`
}

// Server contains HTTP server configuration.
type Server struct {
	// Listen address.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port"`
	// Read timeout in seconds.
	ReadTimeout int `koanf:"read_timeout"`
	// Write timeout in seconds.
	WriteTimeout int `koanf:"write_timeout"`
}

// LoadConfig loads the configuration from the specified file.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".reputeer",
		homeDir + "/.reputeer/config",
		"/etc/reputeer/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/reputeer.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: reputeer.toml", ErrConfigFileNotFound)
	}

	// Verify the config version before unmarshalling
	if !k.Exists("version") {
		return nil, "", ErrConfigVersionMissing
	}

	if version := k.Int("version"); version != CurrentVersion {
		return nil, "", fmt.Errorf("%w: expected %d, found %d",
			ErrConfigVersionMismatch, CurrentVersion, version)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&config)

	return &config, usedConfigPath, nil
}

// applyDefaults fills zero values with conservative defaults so a minimal
// config file still yields a working engine.
func applyDefaults(c *Config) {
	if c.Scoring.MaxBatchSize == 0 {
		c.Scoring.MaxBatchSize = 1000
	}

	if c.Scoring.Workers == 0 {
		c.Scoring.Workers = 8
	}

	if c.Scoring.OperationTimeout == 0 {
		c.Scoring.OperationTimeout = 5000
	}

	if c.Scoring.CacheTTL == 0 {
		c.Scoring.CacheTTL = 300
	}

	if c.Policy.DispatchRetries == 0 {
		c.Policy.DispatchRetries = 3
	}

	if c.Policy.DispatchDelay == 0 {
		c.Policy.DispatchDelay = 500
	}

	if c.Policy.DispatchMaxDelay == 0 {
		c.Policy.DispatchMaxDelay = 5000
	}

	if c.Policy.MaxConcurrentDispatches == 0 {
		c.Policy.MaxConcurrentDispatches = 4
	}

	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5
	}

	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10
	}
}
