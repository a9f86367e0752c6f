package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds every application setting. Secrets may be overridden
// through environment variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Providers struct {
		CoinGecko struct {
			BaseURL       string `yaml:"base_url"`
			APIKey        string `yaml:"api_key"`
			MinIntervalMS int    `yaml:"min_interval_ms"`
		} `yaml:"coingecko"`
		CoinCap struct {
			BaseURL       string `yaml:"base_url"`
			MinIntervalMS int    `yaml:"min_interval_ms"`
		} `yaml:"coincap"`
		CoinPaprika struct {
			BaseURL       string `yaml:"base_url"`
			MinIntervalMS int    `yaml:"min_interval_ms"`
		} `yaml:"coinpaprika"`
	} `yaml:"providers"`

	Refresh struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		BatchSize       int `yaml:"batch_size"`
	} `yaml:"refresh"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file. A missing file
// is not fatal; defaults plus environment overrides still apply.
func LoadConfig(path string) (*Config, error) {
	// .env first so the overrides below can see it
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// run on defaults
	default:
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Refresh.IntervalMinutes <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.Refresh.BatchSize <= 0 {
		return fmt.Errorf("refresh batch size must be positive")
	}
	if c.Providers.CoinGecko.MinIntervalMS <= 0 ||
		c.Providers.CoinCap.MinIntervalMS <= 0 ||
		c.Providers.CoinPaprika.MinIntervalMS <= 0 {
		return fmt.Errorf("provider request intervals must be positive")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "coinfolio"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDBPath()
	}
	if cfg.Providers.CoinGecko.BaseURL == "" {
		cfg.Providers.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Providers.CoinGecko.MinIntervalMS == 0 {
		cfg.Providers.CoinGecko.MinIntervalMS = 2500
	}
	if cfg.Providers.CoinCap.BaseURL == "" {
		cfg.Providers.CoinCap.BaseURL = "https://api.coincap.io/v2"
	}
	if cfg.Providers.CoinCap.MinIntervalMS == 0 {
		cfg.Providers.CoinCap.MinIntervalMS = 1000
	}
	if cfg.Providers.CoinPaprika.BaseURL == "" {
		cfg.Providers.CoinPaprika.BaseURL = "https://api.coinpaprika.com/v1"
	}
	if cfg.Providers.CoinPaprika.MinIntervalMS == 0 {
		cfg.Providers.CoinPaprika.MinIntervalMS = 500
	}
	if cfg.Refresh.IntervalMinutes == 0 {
		cfg.Refresh.IntervalMinutes = 15
	}
	if cfg.Refresh.BatchSize == 0 {
		cfg.Refresh.BatchSize = 50
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
}

// defaultDBPath resolves the database file path based on OS
func defaultDBPath() string {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}
	if err != nil || configDir == "" {
		return filepath.Join("data", "coinfolio.db")
	}

	return filepath.Join(configDir, "Coinfolio", "data", "coinfolio.db")
}

// overrideWithEnv applies environment variables on top of file values.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("COINFOLIO_COINGECKO_API_KEY"); key != "" {
		cfg.Providers.CoinGecko.APIKey = key
	}
	if path := os.Getenv("COINFOLIO_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if port := os.Getenv("COINFOLIO_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("COINFOLIO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
