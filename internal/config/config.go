package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Path       string           `toml:"-"`
}

type SimulationConfig struct {
	Agents          int     `toml:"agents"`
	ItemLimit       int     `toml:"item_limit"`
	PriceVariance   int64   `toml:"price_variance"`
	PayMultiplier   int64   `toml:"pay_multiplier"`
	AuctionDuration int64   `toml:"auction_duration_ticks"`
	RebidWindow     int64   `toml:"rebid_window_ticks"`
	TickIntervalMS  int     `toml:"tick_interval_ms"`
	WorldWidth      float64 `toml:"world_width"`
	WorldHeight     float64 `toml:"world_height"`
	Seed            int64   `toml:"seed"`

	Journal JournalConfig `toml:"journal"`
	Metrics MetricsConfig `toml:"metrics"`
}

type JournalConfig struct {
	DBPath string `toml:"db_path"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

func Load(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	cfg.Path = resolved
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".freight_auction/config.toml"
	}
	return filepath.Join(home, ".freight_auction", "config.toml")
}
