package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json | text
}

type SwapAPI struct {
	Endpoint              string `json:"endpoint"`
	APIKey                string `json:"api_key"`
	SellToken             string `json:"sell_token"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
	// Coalesce lets a fetch for the same asset and amount join one already
	// in flight, so a heartbeat may receive the result of an older manual
	// fetch. Each request is still applied under its own sequence number.
	Coalesce              bool   `json:"coalesce"`
}

type Ethereum struct {
	RPCURL         string `json:"rpc_url"`
	AccountAddress string `json:"account_address"`
}

// Refresh holds the timing knobs of the quote and account loops.
// All values are milliseconds.
type Refresh struct {
	QuoteIntervalMs       int  `json:"quote_interval_ms"`
	QuoteRunImmediately   bool `json:"quote_run_immediately"`
	AccountIntervalMs     int  `json:"account_interval_ms"`
	AccountRunImmediately bool `json:"account_run_immediately"`
	DebounceMs            int  `json:"debounce_ms"`
	ErrorFlashMs          int  `json:"error_flash_ms"`
	// FetchTimeoutMs bounds a single quote fetch. 0 disables the bound.
	FetchTimeoutMs int `json:"fetch_timeout_ms"`
}

func (r Refresh) QuoteInterval() time.Duration   { return ms(r.QuoteIntervalMs) }
func (r Refresh) AccountInterval() time.Duration { return ms(r.AccountIntervalMs) }
func (r Refresh) Debounce() time.Duration        { return ms(r.DebounceMs) }
func (r Refresh) ErrorFlash() time.Duration      { return ms(r.ErrorFlashMs) }
func (r Refresh) FetchTimeout() time.Duration    { return ms(r.FetchTimeoutMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

type Config struct {
	Server   Server   `json:"server"`
	Logging  Logging  `json:"logging"`
	SwapAPI  SwapAPI  `json:"swap_api"`
	Ethereum Ethereum `json:"ethereum"`
	Refresh  Refresh  `json:"refresh"`
}

func Default() Config {
	return Config{
		Server:  Server{Port: "8080", RequestTimeoutSec: 10},
		Logging: Logging{Level: "info", Format: "json"},
		SwapAPI: SwapAPI{
			Endpoint:             "https://api.0x.org",
			SellToken:            "ETH",
			MaxRequestsPerMinute: 60,
			Burst:                5,
			Coalesce:             true,
		},
		Ethereum: Ethereum{RPCURL: "https://eth.llamarpc.com"},
		Refresh: Refresh{
			QuoteIntervalMs:       15000,
			QuoteRunImmediately:   false,
			AccountIntervalMs:     5000,
			AccountRunImmediately: true,
			DebounceMs:            200,
			ErrorFlashMs:          7000,
		},
	}
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. A .env file in the working directory is loaded first;
// environment variables then override select fields.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Default(), fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot start with.
func (c Config) Validate() error {
	if c.Refresh.QuoteIntervalMs <= 0 {
		return fmt.Errorf("refresh.quote_interval_ms must be positive")
	}
	if c.Refresh.AccountIntervalMs <= 0 {
		return fmt.Errorf("refresh.account_interval_ms must be positive")
	}
	if c.Refresh.ErrorFlashMs <= 0 {
		return fmt.Errorf("refresh.error_flash_ms must be positive")
	}
	if c.Refresh.DebounceMs < 0 || c.Refresh.FetchTimeoutMs < 0 {
		return fmt.Errorf("refresh durations cannot be negative")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.Logging.Level = v }
	if v := os.Getenv("LOG_FORMAT"); v != "" { cfg.Logging.Format = v }

	if v := os.Getenv("SWAP_API_URL"); v != "" { cfg.SwapAPI.Endpoint = v }
	if v := os.Getenv("SWAP_API_KEY"); v != "" { cfg.SwapAPI.APIKey = v }
	if v := os.Getenv("SWAP_SELL_TOKEN"); v != "" { cfg.SwapAPI.SellToken = v }
	if v := os.Getenv("SWAP_API_MAX_RPM"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.SwapAPI.MaxRequestsPerMinute = x }
	}
	if v := os.Getenv("SWAP_API_MIN_INTERVAL_SEC"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.SwapAPI.MinRequestIntervalSec = x }
	}
	if v := os.Getenv("SWAP_API_BURST"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.SwapAPI.Burst = x }
	}
	if v := os.Getenv("SWAP_API_COALESCE"); v != "" {
		if b, ok := parseBool(v); ok { cfg.SwapAPI.Coalesce = b }
	}

	if v := os.Getenv("ETH_RPC_URL"); v != "" { cfg.Ethereum.RPCURL = v }
	if v := os.Getenv("ACCOUNT_ADDRESS"); v != "" { cfg.Ethereum.AccountAddress = v }

	if v := os.Getenv("QUOTE_REFRESH_INTERVAL_MS"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Refresh.QuoteIntervalMs = x }
	}
	if v := os.Getenv("QUOTE_REFRESH_IMMEDIATE"); v != "" {
		if b, ok := parseBool(v); ok { cfg.Refresh.QuoteRunImmediately = b }
	}
	if v := os.Getenv("ACCOUNT_REFRESH_INTERVAL_MS"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Refresh.AccountIntervalMs = x }
	}
	if v := os.Getenv("ACCOUNT_REFRESH_IMMEDIATE"); v != "" {
		if b, ok := parseBool(v); ok { cfg.Refresh.AccountRunImmediately = b }
	}
	if v := os.Getenv("AMOUNT_DEBOUNCE_MS"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Refresh.DebounceMs = x }
	}
	if v := os.Getenv("ERROR_FLASH_MS"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Refresh.ErrorFlashMs = x }
	}
	if v := os.Getenv("QUOTE_FETCH_TIMEOUT_MS"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Refresh.FetchTimeoutMs = x }
	}
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}
