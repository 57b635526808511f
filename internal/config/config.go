// Package config loads daemon configuration from file, environment and
// flags via viper.
//
// Precedence (highest first): explicit flags bound by the CLI, ORDO_*
// environment variables, the config file, built-in defaults. The config
// file is YAML, by default at $HOME/.config/ordo/config.yaml.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the full daemon configuration.
type Config struct {
	DB     DBConfig     `mapstructure:"db"`
	API    APIConfig    `mapstructure:"api"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Bridge BridgeConfig `mapstructure:"bridge"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
}

// DBConfig locates the local store.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig points at the remote Ordo API.
type APIConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	MinServerVersion string        `mapstructure:"min_server_version"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// BridgeConfig configures the local WebSocket bridge.
type BridgeConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig locates the bearer token. TokenFile, when set, is watched for
// changes so re-login in the UI reaches the daemon without a restart.
type AuthConfig struct {
	TokenFile string `mapstructure:"token_file"`
}

// LogConfig configures file logging with rotation. An empty File logs to
// stderr only.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".local", "share", "ordo")

	v.SetDefault("db.path", filepath.Join(dataDir, "ordo.db"))
	v.SetDefault("api.base_url", "https://api.ordo.app/v1")
	v.SetDefault("api.min_server_version", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("bridge.port", 17600)
	v.SetDefault("auth.token_file", filepath.Join(dataDir, "token"))
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads configuration. cfgFile, when non-empty, is used instead of the
// default search path. A missing config file is not an error; defaults and
// environment apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ORDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ordo"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds a prefixed logger. With a log file configured, output
// goes to both stderr and a size-rotated file.
func (c *Config) NewLogger(prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if c.Log.File != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   c.Log.File,
			MaxSize:    c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAge:     c.Log.MaxAgeDays,
			Compress:   true,
		})
	}
	return log.New(w, prefix, log.LstdFlags)
}
