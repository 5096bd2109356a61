// Package config loads stratlab configuration from YAML, an optional .env
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stratlab/internal/domain"
	"stratlab/internal/engine"
)

// DefaultPath is read when STRATLAB_CONFIG is unset.
const DefaultPath = "config/stratlab.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stratlab platform.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Binance  Binance  `yaml:"binance"`
	Logging  Logging  `yaml:"logging"`
	Backtest Backtest `yaml:"backtest"`
	Gather   Gather   `yaml:"gather"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	CSVDir     string `yaml:"csv_dir"`
}

// Server holds network listener configuration. A zero MetricsPort serves
// /metrics on the HTTP port.
type Server struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	GRPCPort    int    `yaml:"grpc_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Binance holds credentials and endpoint for Binance spot market data.
type Binance struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest holds the default risk settings applied to every run plus the
// runner's parallelism and data source.
type Backtest struct {
	domain.RiskConfig `yaml:",inline"`

	MaxWorkers int `yaml:"max_workers"`
	// Provider selects the bar source: "auto", "parquet", "csv", "alpaca"
	// or "binance".
	Provider string `yaml:"provider"`
}

// Gather controls how remote providers pace their requests.
type Gather struct {
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
	MaxRetries      int `yaml:"max_retries"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/stratlab.db",
			CSVDir:     "data/csv",
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Backtest: Backtest{
			RiskConfig: domain.DefaultRiskConfig(),
			MaxWorkers: 4,
			Provider:   "auto",
		},
		Gather: Gather{RateLimitPerMin: 200, MaxRetries: 3},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file location from STRATLAB_CONFIG, or DefaultPath.
func Path() string {
	if v := os.Getenv("STRATLAB_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path over Default and
// then applies environment variable overrides. A .env file in the working
// directory is loaded first when present. An empty path means Path(); a
// missing file at that default location yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	defaulted := path == ""
	if defaulted {
		path = Path()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case defaulted && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Backtest.RiskConfig.Validate(); err != nil {
		return nil, fmt.Errorf("backtest defaults: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("CSV_DIR"); v != "" {
		cfg.Storage.CSVDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	// Standard Alpaca env vars take priority; the SDK reads the same names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		cfg.Binance.APISecret = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STRATLAB_PROVIDER"); v != "" {
		cfg.Backtest.Provider = v
	}
	if v := os.Getenv("STRATLAB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
}

// LoadRunRequest reads a backtest request from a YAML (or JSON) file.
func LoadRunRequest(path string) (engine.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Request{}, err
	}
	var req engine.Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return engine.Request{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if req.Strategy == "" {
		return engine.Request{}, fmt.Errorf("%s: %w: strategy is required", path, engine.ErrInvalidRequest)
	}
	return req, nil
}
