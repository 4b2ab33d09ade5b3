package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     LoggingConfig `yaml:"log"`
	REST    RESTConfig    `yaml:"rest"`
	WS      WSConfig      `yaml:"ws"`
	Chart   ChartConfig   `yaml:"chart"`
	Quotes  QuotesConfig  `yaml:"quotes"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL          string        `yaml:"url"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type ChartConfig struct {
	Symbol        string `yaml:"symbol"`
	Interval      string `yaml:"interval"`
	Range         string `yaml:"range"`
	SnapshotLimit int    `yaml:"snapshot_limit"`
	Retention     int    `yaml:"retention"`
	EMAWindow     int    `yaml:"ema_window"`
}

type QuotesConfig struct {
	Symbols     []string `yaml:"symbols"`
	SparkPoints int      `yaml:"spark_points"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.binance.com"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 12 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = time.Minute
	}
	if cfg.Chart.Symbol == "" {
		cfg.Chart.Symbol = "BTCUSDT"
	}
	if cfg.Chart.Interval == "" {
		cfg.Chart.Interval = "30m"
	}
	if cfg.Chart.Range == "" {
		cfg.Chart.Range = "ALL"
	}
	if cfg.Chart.SnapshotLimit <= 0 || cfg.Chart.SnapshotLimit > 1000 {
		cfg.Chart.SnapshotLimit = 800
	}
	if cfg.Chart.Retention <= 0 {
		cfg.Chart.Retention = 1500
	}
	if cfg.Chart.EMAWindow <= 0 {
		cfg.Chart.EMAWindow = 20
	}
	if len(cfg.Quotes.Symbols) == 0 {
		cfg.Quotes.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if cfg.Quotes.SparkPoints <= 0 {
		cfg.Quotes.SparkPoints = 200
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9180"
	}
}

// applyEnv overlays a few operator-facing knobs from the environment,
// so a symbol can be switched without editing the config file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ATLAS_SYMBOL")); v != "" {
		cfg.Chart.Symbol = v
	}
	if v := strings.TrimSpace(os.Getenv("ATLAS_INTERVAL")); v != "" {
		cfg.Chart.Interval = v
	}
	if v := strings.TrimSpace(os.Getenv("ATLAS_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
}

func validate(cfg *Config) error {
	if cfg.REST.Timeout < 0 {
		return errors.New("rest.timeout must not be negative")
	}
	for _, sym := range cfg.Quotes.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("quotes.symbols contains an empty symbol")
		}
	}
	return nil
}
