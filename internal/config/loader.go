package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FILLBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FILLBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "FILLBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "FILLBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "FILLBOT_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "FILLBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "FILLBOT_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.SettlementAddress, "FILLBOT_CHAIN_SETTLEMENT_ADDRESS")
	setStr(&cfg.Chain.CollateralAddress, "FILLBOT_CHAIN_COLLATERAL_ADDRESS")
	setDuration(&cfg.Chain.ConfirmTimeout, "FILLBOT_CHAIN_CONFIRM_TIMEOUT")

	// ── Relay ──
	setStr(&cfg.Relay.BaseURL, "FILLBOT_RELAY_BASE_URL")
	setStr(&cfg.Relay.WsURL, "FILLBOT_RELAY_WS_URL")
	setStr(&cfg.Relay.ApiKey, "FILLBOT_RELAY_API_KEY")
	setStr(&cfg.Relay.ApiSecret, "FILLBOT_RELAY_API_SECRET")
	setStr(&cfg.Relay.ApiPassphrase, "FILLBOT_RELAY_API_PASSPHRASE")

	// ── Engine ──
	setStr(&cfg.Engine.Strategy, "FILLBOT_ENGINE_STRATEGY")
	setFloat64(&cfg.Engine.FillRatio, "FILLBOT_ENGINE_FILL_RATIO")
	setStr(&cfg.Engine.MinOfferSize, "FILLBOT_ENGINE_MIN_OFFER_SIZE")
	setBool(&cfg.Engine.DryRun, "FILLBOT_ENGINE_DRY_RUN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FILLBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "FILLBOT_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "FILLBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FILLBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FILLBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FILLBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FILLBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FILLBOT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "FILLBOT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "FILLBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FILLBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FILLBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FILLBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FILLBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FILLBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FILLBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FILLBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FILLBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FILLBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FILLBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FILLBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FILLBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FILLBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FILLBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FILLBOT_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "FILLBOT_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.PollInterval, "FILLBOT_PIPELINE_POLL_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "FILLBOT_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "FILLBOT_PIPELINE_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FILLBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FILLBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FILLBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FILLBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FILLBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FILLBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FILLBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FILLBOT_NOTIFY_EVENTS")

	// ── Limits ──
	setInt(&cfg.Limits.OffersPerMinute, "FILLBOT_LIMITS_OFFERS_PER_MINUTE")
	setInt(&cfg.Limits.FillsPerMinute, "FILLBOT_LIMITS_FILLS_PER_MINUTE")

	// ── Top-level ──
	setStr(&cfg.Mode, "FILLBOT_MODE")
	setStr(&cfg.LogLevel, "FILLBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
