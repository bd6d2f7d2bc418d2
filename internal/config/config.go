// Package config defines all configuration for the pocket keeper.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via POCKET_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun   bool           `mapstructure:"dry_run"`
	Keeper   KeeperConfig   `mapstructure:"keeper"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`
}

// KeeperConfig holds the signing key and trigger cadence of the keeper loop.
// PrivateKey signs every submitted batch; its derived address must be in the
// registry's operator set or every trigger is rejected.
type KeeperConfig struct {
	PrivateKey      string        `mapstructure:"private_key"`
	TriggerInterval time.Duration `mapstructure:"trigger_interval"`
}

// LedgerConfig holds the RPC endpoint and confirmation policy for batch
// submission.
type LedgerConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Finality       string        `mapstructure:"finality"` // processed, confirmed, finalized
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// ExchangeConfig holds the market gateway endpoints.
type ExchangeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"` // empty disables the price feed
	// MaxPriceAge bounds how stale a cached feed sample may be before the
	// keeper falls back to a REST price read.
	MaxPriceAge time.Duration `mapstructure:"max_price_age"`
}

// ExecutorConfig tunes swap execution.
//
//   - SlippageBps: limit price distance from mid, in basis points.
//   - UseLookupTable: compress swap batches through the keeper's address
//     lookup table.
type ExecutorConfig struct {
	SlippageBps    int64 `mapstructure:"slippage_bps"`
	UseLookupTable bool  `mapstructure:"use_lookup_table"`
}

// StoreConfig sets where registry and pocket records are persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig controls the HTTP snapshot/event server.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: POCKET_PRIVATE_KEY, POCKET_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("POCKET_PRIVATE_KEY"); key != "" {
		cfg.Keeper.PrivateKey = key
	}
	if os.Getenv("POCKET_DRY_RUN") == "true" || os.Getenv("POCKET_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Keeper.TriggerInterval <= 0 {
		cfg.Keeper.TriggerInterval = 10 * time.Second
	}
	if cfg.Ledger.RequestTimeout <= 0 {
		cfg.Ledger.RequestTimeout = 15 * time.Second
	}
	if cfg.Ledger.Finality == "" {
		cfg.Ledger.Finality = "confirmed"
	}
	if cfg.Ledger.PollInterval <= 0 {
		cfg.Ledger.PollInterval = 500 * time.Millisecond
	}
	if cfg.Exchange.MaxPriceAge <= 0 {
		cfg.Exchange.MaxPriceAge = 5 * time.Second
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = "data"
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Keeper.PrivateKey == "" {
		return fmt.Errorf("keeper.private_key is required (set POCKET_PRIVATE_KEY)")
	}
	if c.Ledger.Endpoint == "" {
		return fmt.Errorf("ledger.endpoint is required")
	}
	switch c.Ledger.Finality {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("ledger.finality must be one of: processed, confirmed, finalized")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Executor.SlippageBps < 0 || c.Executor.SlippageBps >= 10000 {
		return fmt.Errorf("executor.slippage_bps must be in [0, 10000)")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be a valid TCP port")
	}
	return nil
}
