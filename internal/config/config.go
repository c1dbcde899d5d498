// Package config defines the top-level configuration for the fill bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FILLBOT_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Relay    RelayConfig    `toml:"relay"`
	Engine   EngineConfig   `toml:"engine"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Limits   LimitsConfig   `toml:"limits"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC endpoint and deployed contract parameters.
type ChainConfig struct {
	RPCURL            string   `toml:"rpc_url"`
	ChainID           int64    `toml:"chain_id"`
	SettlementAddress string   `toml:"settlement_address"`
	CollateralAddress string   `toml:"collateral_address"`
	ConfirmTimeout    duration `toml:"confirm_timeout"`
}

// RelayConfig holds the offer-relay API endpoints and credentials.
type RelayConfig struct {
	BaseURL       string `toml:"base_url"`
	WsURL         string `toml:"ws_url"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// EngineConfig holds fill engine and strategy parameters.
type EngineConfig struct {
	Strategy     string  `toml:"strategy"`
	FillRatio    float64 `toml:"fill_ratio"`
	MinOfferSize string  `toml:"min_offer_size"`
	DryRun       bool    `toml:"dry_run"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds offer-ingestion parameters.
type PipelineConfig struct {
	Enabled              bool     `toml:"enabled"`
	PollInterval         duration `toml:"poll_interval"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveCron          string   `toml:"archive_cron"` // 5-field cron expression
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables request authentication
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LimitsConfig holds operational rate limits. These throttle this operator's
// own request volume against the relay and chain; they are unrelated to the
// engine's validation, which never rate-limits.
type LimitsConfig struct {
	OffersPerMinute int `toml:"offers_per_minute"`
	FillsPerMinute  int `toml:"fills_per_minute"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:         "http://localhost:8545",
			ChainID:        137,
			ConfirmTimeout: duration{2 * time.Minute},
		},
		Relay: RelayConfig{
			BaseURL: "https://relay.meridian.xyz",
			WsURL:   "wss://relay.meridian.xyz/ws",
		},
		Engine: EngineConfig{
			Strategy:  "full",
			FillRatio: 0.5,
			DryRun:    false,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "fillbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "fillbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			Enabled:              true,
			PollInterval:         duration{30 * time.Second},
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"offer_posted", "fill_confirmed", "fill_rejected", "error"},
		},
		Limits: LimitsConfig{
			OffersPerMinute: 30,
			FillsPerMinute:  10,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"maker":   true,
	"filler":  true,
	"monitor": true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStrategies enumerates the accepted values for Engine.Strategy.
var validStrategies = map[string]bool{
	"full":  true,
	"ratio": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: maker, filler, monitor, archive)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — signing modes need a key source.
	needsWallet := c.Mode == "maker" || c.Mode == "filler"
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.SettlementAddress == "" {
		errs = append(errs, "chain: settlement_address must not be empty")
	}
	if c.Chain.CollateralAddress == "" {
		errs = append(errs, "chain: collateral_address must not be empty")
	}
	if c.Chain.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "chain: confirm_timeout must be positive")
	}

	// Relay endpoints
	if c.Relay.BaseURL == "" {
		errs = append(errs, "relay: base_url must not be empty")
	}

	// Relay credentials — all three fields must be set together, or all empty.
	rk := c.Relay.ApiKey != ""
	rs := c.Relay.ApiSecret != ""
	rp := c.Relay.ApiPassphrase != ""
	if rk || rs || rp {
		if !(rk && rs && rp) {
			errs = append(errs, "relay: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Engine
	if !validStrategies[c.Engine.Strategy] {
		errs = append(errs, fmt.Sprintf("engine: unknown strategy %q (valid: full, ratio)", c.Engine.Strategy))
	}
	if c.Engine.Strategy == "ratio" && (c.Engine.FillRatio <= 0 || c.Engine.FillRatio > 1) {
		errs = append(errs, fmt.Sprintf("engine: fill_ratio must be in (0, 1], got %v", c.Engine.FillRatio))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Pipeline
	if c.Pipeline.Enabled && c.Pipeline.PollInterval.Duration <= 0 {
		errs = append(errs, "pipeline: poll_interval must be positive when enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Limits
	if c.Limits.OffersPerMinute < 1 {
		errs = append(errs, "limits: offers_per_minute must be >= 1")
	}
	if c.Limits.FillsPerMinute < 1 {
		errs = append(errs, "limits: fills_per_minute must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
