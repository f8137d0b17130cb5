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
// built-in defaults, applies BETBRIDGE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BETBRIDGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Secrets are normally injected this way rather than via the file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStringSlice(&cfg.Chain.RPC, "BETBRIDGE_CHAIN_RPC")
	setStr(&cfg.Chain.Contract, "BETBRIDGE_CHAIN_CONTRACT")
	setUint64(&cfg.Chain.FirstBlock, "BETBRIDGE_CHAIN_FIRST_BLOCK")
	setInt64(&cfg.Chain.ChainID, "BETBRIDGE_CHAIN_CHAIN_ID")
	setUint64(&cfg.Chain.GasLimit, "BETBRIDGE_CHAIN_GAS_LIMIT")
	setInt64(&cfg.Chain.GasPriceGwei, "BETBRIDGE_CHAIN_GAS_PRICE_GWEI")
	setUint64(&cfg.Chain.Confirmations, "BETBRIDGE_CHAIN_CONFIRMATIONS")
	setUint64(&cfg.Chain.MaxBlockRange, "BETBRIDGE_CHAIN_MAX_BLOCK_RANGE")
	setDuration(&cfg.Chain.Timeout, "BETBRIDGE_CHAIN_TIMEOUT")
	setStr(&cfg.Chain.SenderAddress, "BETBRIDGE_CHAIN_SENDER_ADDRESS")
	setStr(&cfg.Chain.PrivateKey, "BETBRIDGE_CHAIN_PRIVATE_KEY")
	setStr(&cfg.Chain.EncryptedKeyPath, "BETBRIDGE_CHAIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Chain.KeyPassword, "BETBRIDGE_CHAIN_KEY_PASSWORD")

	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "BETBRIDGE_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.APIKey, "BETBRIDGE_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.SecretKey, "BETBRIDGE_EXCHANGE_SECRET_KEY")
	setStr(&cfg.Exchange.Symbol, "BETBRIDGE_EXCHANGE_SYMBOL")
	setInt(&cfg.Exchange.Leverage, "BETBRIDGE_EXCHANGE_LEVERAGE")
	setStr(&cfg.Exchange.MarginType, "BETBRIDGE_EXCHANGE_MARGIN_TYPE")
	setFloat64(&cfg.Exchange.NotionalMultiplier, "BETBRIDGE_EXCHANGE_NOTIONAL_MULTIPLIER")
	setFloat64(&cfg.Exchange.PriceTick, "BETBRIDGE_EXCHANGE_PRICE_TICK")
	setFloat64(&cfg.Exchange.QuantityStep, "BETBRIDGE_EXCHANGE_QUANTITY_STEP")
	setFloat64(&cfg.Exchange.RequestsPerSecond, "BETBRIDGE_EXCHANGE_REQUESTS_PER_SECOND")
	setDuration(&cfg.Exchange.Timeout, "BETBRIDGE_EXCHANGE_TIMEOUT")

	// ── Algo ──
	setDuration(&cfg.Algo.BetTimeout, "BETBRIDGE_ALGO_TIMEOUT")
	setFloat64(&cfg.Algo.SafebeltTriggerPct, "BETBRIDGE_ALGO_SAFEBELT_TRIGGER_PCT")
	setFloat64(&cfg.Algo.WinTriggerPct, "BETBRIDGE_ALGO_WIN_TRIGGER_PCT")

	// ── Settlement ──
	setInt64(&cfg.Settlement.ClosingPrice, "BETBRIDGE_SETTLEMENT_CLOSING_PRICE")
	setInt64(&cfg.Settlement.Amount, "BETBRIDGE_SETTLEMENT_AMOUNT")

	// ── Loops ──
	setDuration(&cfg.Ingest.PollInterval, "BETBRIDGE_INGEST_POLL_INTERVAL")
	setDuration(&cfg.Ingest.RetryBackoff, "BETBRIDGE_INGEST_RETRY_BACKOFF")
	setBool(&cfg.Sweeper.Enabled, "BETBRIDGE_SWEEPER_ENABLED")
	setDuration(&cfg.Sweeper.Interval, "BETBRIDGE_SWEEPER_INTERVAL")

	// ── Ledger ──
	setStr(&cfg.Ledger.Driver, "BETBRIDGE_LEDGER_DRIVER")
	setStr(&cfg.Ledger.SQLitePath, "BETBRIDGE_LEDGER_SQLITE_PATH")
	setStr(&cfg.Ledger.DSN, "BETBRIDGE_LEDGER_DSN")
	setStr(&cfg.Ledger.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Ledger.Host, "BETBRIDGE_LEDGER_HOST")
	setInt(&cfg.Ledger.Port, "BETBRIDGE_LEDGER_PORT")
	setStr(&cfg.Ledger.Database, "BETBRIDGE_LEDGER_DATABASE")
	setStr(&cfg.Ledger.User, "BETBRIDGE_LEDGER_USER")
	setStr(&cfg.Ledger.Password, "BETBRIDGE_LEDGER_PASSWORD")
	setStr(&cfg.Ledger.SSLMode, "BETBRIDGE_LEDGER_SSL_MODE")
	setInt(&cfg.Ledger.PoolMaxConns, "BETBRIDGE_LEDGER_POOL_MAX_CONNS")
	setInt(&cfg.Ledger.PoolMinConns, "BETBRIDGE_LEDGER_POOL_MIN_CONNS")
	setBool(&cfg.Ledger.RunMigrations, "BETBRIDGE_LEDGER_RUN_MIGRATIONS")
	setDuration(&cfg.Ledger.StatementTimeout, "BETBRIDGE_LEDGER_STATEMENT_TIMEOUT")

	// ── Lock ──
	setStr(&cfg.Lock.Backend, "BETBRIDGE_LOCK_BACKEND")
	setDuration(&cfg.Lock.TTL, "BETBRIDGE_LOCK_TTL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BETBRIDGE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BETBRIDGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BETBRIDGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BETBRIDGE_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "BETBRIDGE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "BETBRIDGE_REDIS_NAMESPACE")
	setStr(&cfg.Redis.EventStream, "BETBRIDGE_REDIS_EVENT_STREAM")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "BETBRIDGE_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "BETBRIDGE_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "BETBRIDGE_KAFKA_TOPIC")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BETBRIDGE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BETBRIDGE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BETBRIDGE_S3_REGION")
	setStr(&cfg.S3.Bucket, "BETBRIDGE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BETBRIDGE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BETBRIDGE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BETBRIDGE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BETBRIDGE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "BETBRIDGE_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BETBRIDGE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BETBRIDGE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "BETBRIDGE_SERVER_API_KEY")
	setFloat64(&cfg.Server.RequestsPerSecond, "BETBRIDGE_SERVER_REQUESTS_PER_SECOND")
	setInt(&cfg.Server.Burst, "BETBRIDGE_SERVER_BURST")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BETBRIDGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BETBRIDGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BETBRIDGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BETBRIDGE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "BETBRIDGE_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
