// Package config loads process settings for the clamm command from a config file, CLAMM_*
// environment variables and command flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Scenario      string
	EventsOut     string
	PGDSN         string
	Listen        string
	MetricsPath   string
	URL           string
	ChainID       uint64
	BlockInterval time.Duration
	BufferSize    int
	LogLevel      string
}

// Defaults shared by Load and the command-line flags.
const (
	DefaultListen        = "127.0.0.1:8545"
	DefaultMetricsPath   = "/metrics"
	DefaultURL           = "ws://127.0.0.1:8545"
	DefaultChainID       = 1
	DefaultBlockInterval = time.Second
	DefaultBufferSize    = 64
	DefaultLogLevel      = "info"
)

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", DefaultListen)
	v.SetDefault("metrics-path", DefaultMetricsPath)
	v.SetDefault("url", DefaultURL)
	v.SetDefault("chain-id", uint64(DefaultChainID))
	v.SetDefault("block-interval", DefaultBlockInterval)
	v.SetDefault("buffer-size", DefaultBufferSize)
	v.SetDefault("log-level", DefaultLogLevel)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("clamm")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Scenario:      v.GetString("scenario"),
		EventsOut:     v.GetString("events-out"),
		PGDSN:         v.GetString("pg-dsn"),
		Listen:        v.GetString("listen"),
		MetricsPath:   v.GetString("metrics-path"),
		URL:           v.GetString("url"),
		ChainID:       v.GetUint64("chain-id"),
		BlockInterval: v.GetDuration("block-interval"),
		BufferSize:    v.GetInt("buffer-size"),
		LogLevel:      v.GetString("log-level"),
	}
	if cfg.BufferSize <= 0 {
		return Config{}, fmt.Errorf("buffer-size must be positive, got %d", cfg.BufferSize)
	}
	if cfg.BlockInterval < 0 {
		return Config{}, fmt.Errorf("block-interval must not be negative, got %s", cfg.BlockInterval)
	}

	return cfg, nil
}
