// Package config loads hierarchical server configuration from environment
// variables, with an optional config file, layered over built-in defaults.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for the server.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds the RESP TCP listener settings.
type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// StorageConfig holds the SQLite storage settings.
type StorageConfig struct {
	Path   string `mapstructure:"path"`
	Prefix string `mapstructure:"prefix"`
}

// LogConfig holds logging verbosity and output encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the Prometheus metrics/health HTTP endpoint settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from an optional config file under path, then
// overrides it with environment variables, then falls back to defaults.
func Load(path string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if path != "" {
		viper.AddConfigPath(path)
	}
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("REDIS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// REDIS_SQLITE_PREFIX and REDIS_SQLITE_PATH don't follow the
	// "REDIS_<SECTION>_<KEY>" shape AutomaticEnv derives from the struct
	// tags, since the distilled spec mandates these exact names; neither do
	// the shorter REDIS_ADDR/REDIS_PASSWORD/etc., so every name is bound
	// explicitly.
	_ = viper.BindEnv("storage.prefix", "REDIS_SQLITE_PREFIX")
	_ = viper.BindEnv("storage.path", "REDIS_SQLITE_PATH")
	_ = viper.BindEnv("server.addr", "REDIS_ADDR")
	_ = viper.BindEnv("server.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("metrics.addr", "REDIS_METRICS_ADDR")
	_ = viper.BindEnv("log.level", "REDIS_LOG_LEVEL")
	_ = viper.BindEnv("log.format", "REDIS_LOG_FORMAT")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.addr", "127.0.0.1:6379")
	viper.SetDefault("server.password", "")

	viper.SetDefault("storage.path", "redisqlite.db")
	viper.SetDefault("storage.prefix", "redis_")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	viper.SetDefault("metrics.addr", "127.0.0.1:9121")
}
