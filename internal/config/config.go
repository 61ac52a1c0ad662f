package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	TELEGRAM_TOKEN   string  `yaml:"TELEGRAM_TOKEN"`
	AUTHORIZED_USERS []int64 `yaml:"AUTHORIZED_USERS"` // empty = allow all

	// 0x swap API
	ZEROX_API_KEY  string `yaml:"ZEROX_API_KEY"`
	ZEROX_BASE_URL string `yaml:"ZEROX_BASE_URL"`

	// Chain
	CHAIN_ID int64  `yaml:"CHAIN_ID"`
	RPC_URL  string `yaml:"RPC_URL"`

	// secrets kept in YAML or env (NOT via telegram)
	PRIVATE_KEY string `yaml:"PRIVATE_KEY"`

	// Contracts & tokens (Base mainnet defaults)
	PERMIT2_CONTRACT string `yaml:"PERMIT2_CONTRACT"`
	NATIVE_TOKEN     string `yaml:"NATIVE_TOKEN"`
	WETH_TOKEN       string `yaml:"WETH_TOKEN"`
	USDC_TOKEN       string `yaml:"USDC_TOKEN"`

	// Trading defaults
	SLIPPAGE     string   `yaml:"SLIPPAGE"`     // fraction, e.g. "0.02"
	BUY_PRESETS  []string `yaml:"BUY_PRESETS"`  // ETH amounts for the quick-buy buttons
	SELL_PRESETS []int    `yaml:"SELL_PRESETS"` // percentage sell buttons

	// Observability
	METRICS_ADDR string `yaml:"METRICS_ADDR"` // empty disables the metrics server
	DEBUG        bool   `yaml:"DEBUG"`
}

const DefaultPath = "config.yml"

func Default() *Config {
	return &Config{
		TELEGRAM_TOKEN:   "",
		AUTHORIZED_USERS: []int64{},

		ZEROX_API_KEY:  "",
		ZEROX_BASE_URL: "https://api.0x.org",

		CHAIN_ID: 8453, // Base mainnet
		RPC_URL:  "https://mainnet.base.org",

		PRIVATE_KEY: "",

		PERMIT2_CONTRACT: "0x000000000022d473030f116ddee9f6b43ac78ba3",
		NATIVE_TOKEN:     "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
		WETH_TOKEN:       "0x4200000000000000000000000000000000000006",
		USDC_TOKEN:       "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",

		SLIPPAGE:     "0.02",
		BUY_PRESETS:  []string{"0.1", "0.2", "0.5"},
		SELL_PRESETS: []int{10, 25, 50, 100},

		METRICS_ADDR: "",
		DEBUG:        false,
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.TELEGRAM_TOKEN = v
	}
	if v := os.Getenv("AUTHORIZED_USERS"); v != "" {
		var ids []int64
		for _, part := range strings.Split(v, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		c.AUTHORIZED_USERS = ids
	}
	if v := os.Getenv("ZEROX_API_KEY"); v != "" {
		c.ZEROX_API_KEY = v
	}
	if v := os.Getenv("ZEROX_BASE_URL"); v != "" {
		c.ZEROX_BASE_URL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.CHAIN_ID = id
		}
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		c.RPC_URL = v
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		c.PRIVATE_KEY = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.METRICS_ADDR = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		c.DEBUG = v == "true" || v == "1"
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	// create if missing
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Validate fails when a required value is missing. Missing configuration is a
// startup-time fatal condition, never a runtime one.
func (c *Config) Validate() error {
	var missing []string
	if c.TELEGRAM_TOKEN == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if c.ZEROX_API_KEY == "" {
		missing = append(missing, "ZEROX_API_KEY")
	}
	if c.PRIVATE_KEY == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if c.RPC_URL == "" {
		missing = append(missing, "RPC_URL")
	}
	if c.CHAIN_ID == 0 {
		missing = append(missing, "CHAIN_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}
