// Package config defines the top-level configuration for betbridge and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BETBRIDGE_* environment variables.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Exchange   ExchangeConfig   `toml:"exchange"`
	Algo       AlgoConfig       `toml:"algo"`
	Settlement SettlementConfig `toml:"settlement"`
	Ingest     IngestConfig     `toml:"ingest"`
	Sweeper    SweeperConfig    `toml:"sweeper"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Lock       LockConfig       `toml:"lock"`
	Redis      RedisConfig      `toml:"redis"`
	Kafka      KafkaConfig      `toml:"kafka"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig holds the betting contract, RPC entrypoints and the rewards
// wallet used to sign lifecycle transactions.
type ChainConfig struct {
	RPC           []string `toml:"rpc"`
	Contract      string   `toml:"contract"`
	FirstBlock    uint64   `toml:"first_block"`
	ChainID       int64    `toml:"chain_id"`
	GasLimit      uint64   `toml:"gas_limit"`
	GasPriceGwei  int64    `toml:"gas_price_gwei"` // 0 asks the node
	Confirmations uint64   `toml:"confirmations"`
	MaxBlockRange uint64   `toml:"max_block_range"`
	Timeout       duration `toml:"timeout"`

	SenderAddress    string `toml:"sender_address"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ExchangeConfig holds futures API credentials and symbol parameters.
type ExchangeConfig struct {
	BaseURL            string   `toml:"base_url"`
	APIKey             string   `toml:"api_key"`
	SecretKey          string   `toml:"secret_key"`
	Symbol             string   `toml:"symbol"`
	Leverage           int      `toml:"leverage"`
	MarginType         string   `toml:"margin_type"`
	NotionalMultiplier float64  `toml:"notional_multiplier"`
	PriceTick          float64  `toml:"price_tick"`
	QuantityStep       float64  `toml:"quantity_step"`
	RecvWindowMs       int      `toml:"recv_window_ms"`
	RequestsPerSecond  float64  `toml:"requests_per_second"`
	Burst              int      `toml:"burst"`
	Timeout            duration `toml:"timeout"`
}

// AlgoConfig holds the bet policy.
type AlgoConfig struct {
	BetTimeout         duration `toml:"timeout"`
	SafebeltTriggerPct float64  `toml:"safebelt_trigger_pct"`
	WinTriggerPct      float64  `toml:"win_trigger_pct"`
}

// SettlementConfig holds the closing price and amount reported on-chain
// when a bet settles.
type SettlementConfig struct {
	ClosingPrice int64 `toml:"closing_price"`
	Amount       int64 `toml:"amount"`
}

// IngestConfig holds event ingestion timing.
type IngestConfig struct {
	PollInterval duration `toml:"poll_interval"`
	RetryBackoff duration `toml:"retry_backoff"`
}

// SweeperConfig holds stale-bet expiry timing.
type SweeperConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// LedgerConfig selects and configures the bet ledger backend.
type LedgerConfig struct {
	Driver        string `toml:"driver"` // "postgres" or "sqlite"
	SQLitePath    string `toml:"sqlite_path"`
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

	StatementTimeout duration `toml:"statement_timeout"` // server-side, 0 disables
}

// LockConfig selects the per-bet lock backend.
type LockConfig struct {
	Backend string   `toml:"backend"` // "memory" or "redis"
	TTL     duration `toml:"ttl"`
}

// RedisConfig holds Redis connection parameters. Redis backs the distributed
// bet lock and the lifecycle event stream.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	Namespace    string `toml:"namespace"` // prefix of every key the bridge writes
	EventStream  string `toml:"event_stream"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// KafkaConfig holds the lifecycle event topic.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// S3Config holds S3-compatible object storage parameters for the resolved
// bet journal.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Prefix         string   `toml:"prefix"`
	FlushInterval  duration `toml:"flush_interval"`
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

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled           bool    `toml:"enabled"`
	Port              int     `toml:"port"`
	APIKey            string  `toml:"api_key"`
	RequestsPerSecond float64 `toml:"requests_per_second"` // per client, 0 disables
	Burst             int     `toml:"burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:       97,
			GasLimit:      200_000,
			GasPriceGwei:  200,
			Confirmations: 0,
			MaxBlockRange: 5_000,
			Timeout:       duration{30 * time.Second},
		},
		Exchange: ExchangeConfig{
			BaseURL:            "https://testnet.binancefuture.com",
			Symbol:             "BTCUSDT",
			Leverage:           46,
			MarginType:         "ISOLATED",
			NotionalMultiplier: 1,
			PriceTick:          0.01,
			QuantityStep:       0.001,
			RecvWindowMs:       5_000,
			RequestsPerSecond:  10,
			Burst:              5,
			Timeout:            duration{10 * time.Second},
		},
		Algo: AlgoConfig{
			BetTimeout:         duration{time.Hour},
			SafebeltTriggerPct: 2,
			WinTriggerPct:      3,
		},
		Settlement: SettlementConfig{
			ClosingPrice: 1,
			Amount:       1,
		},
		Ingest: IngestConfig{
			PollInterval: duration{60 * time.Second},
			RetryBackoff: duration{10 * time.Second},
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: duration{60 * time.Second},
		},
		Ledger: LedgerConfig{
			Driver:        "postgres",
			SQLitePath:    "betbridge.db",
			Host:          "localhost",
			Port:          5432,
			Database:      "betbridge",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,

			StatementTimeout: duration{10 * time.Second},
		},
		Lock: LockConfig{
			Backend: "memory",
			TTL:     duration{2 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			Namespace:    "betbridge",
			EventStream:  "events",
			StreamMaxLen: 10_000,
		},
		Kafka: KafkaConfig{
			Topic: "betbridge.lifecycle",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "betbridge",
			ForcePathStyle: true,
			Prefix:         "journal",
			FlushInterval:  duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Notify: NotifyConfig{
			Events: []string{"bet_settled", "bet_expired", "error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if len(c.Chain.RPC) == 0 {
		errs = append(errs, "chain: at least one rpc entrypoint is required")
	}
	if !common.IsHexAddress(c.Chain.Contract) {
		errs = append(errs, fmt.Sprintf("chain: contract %q is not a hex address", c.Chain.Contract))
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.GasLimit == 0 {
		errs = append(errs, "chain: gas_limit must be > 0")
	}
	if c.Chain.GasPriceGwei < 0 {
		errs = append(errs, "chain: gas_price_gwei must be >= 0")
	}
	if c.Chain.MaxBlockRange == 0 {
		errs = append(errs, "chain: max_block_range must be > 0")
	}
	if c.Chain.PrivateKey == "" && c.Chain.EncryptedKeyPath == "" {
		errs = append(errs, "chain: either private_key or encrypted_key_path must be set")
	}
	if c.Chain.EncryptedKeyPath != "" && c.Chain.KeyPassword == "" {
		errs = append(errs, "chain: key_password is required when encrypted_key_path is set")
	}
	if c.Chain.SenderAddress != "" && !common.IsHexAddress(c.Chain.SenderAddress) {
		errs = append(errs, fmt.Sprintf("chain: sender_address %q is not a hex address", c.Chain.SenderAddress))
	}

	// Exchange
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.APIKey == "" || c.Exchange.SecretKey == "" {
		errs = append(errs, "exchange: api_key and secret_key must both be set")
	}
	if c.Exchange.Symbol == "" {
		errs = append(errs, "exchange: symbol must not be empty")
	}
	if c.Exchange.Leverage < 1 || c.Exchange.Leverage > 125 {
		errs = append(errs, fmt.Sprintf("exchange: leverage must be 1-125, got %d", c.Exchange.Leverage))
	}
	switch strings.ToUpper(c.Exchange.MarginType) {
	case "ISOLATED", "CROSSED":
	default:
		errs = append(errs, fmt.Sprintf("exchange: margin_type must be ISOLATED or CROSSED, got %q", c.Exchange.MarginType))
	}
	if c.Exchange.NotionalMultiplier <= 0 {
		errs = append(errs, "exchange: notional_multiplier must be > 0")
	}
	if c.Exchange.PriceTick <= 0 || c.Exchange.QuantityStep <= 0 {
		errs = append(errs, "exchange: price_tick and quantity_step must be > 0")
	}
	if c.Exchange.RequestsPerSecond <= 0 {
		errs = append(errs, "exchange: requests_per_second must be > 0")
	}

	// Algo
	if c.Algo.BetTimeout.Duration <= 0 {
		errs = append(errs, "algo: timeout must be > 0")
	}
	if c.Algo.SafebeltTriggerPct <= 0 || c.Algo.SafebeltTriggerPct >= 100 {
		errs = append(errs, "algo: safebelt_trigger_pct must be in (0, 100)")
	}
	if c.Algo.WinTriggerPct <= 0 || c.Algo.WinTriggerPct >= 100 {
		errs = append(errs, "algo: win_trigger_pct must be in (0, 100)")
	}

	// Settlement
	if c.Settlement.ClosingPrice < 0 || c.Settlement.Amount < 0 {
		errs = append(errs, "settlement: closing_price and amount must be >= 0")
	}

	// Loops
	if c.Ingest.PollInterval.Duration <= 0 {
		errs = append(errs, "ingest: poll_interval must be > 0")
	}
	if c.Ingest.RetryBackoff.Duration <= 0 {
		errs = append(errs, "ingest: retry_backoff must be > 0")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval.Duration <= 0 {
		errs = append(errs, "sweeper: interval must be > 0")
	}

	// Ledger
	switch c.Ledger.Driver {
	case "postgres":
		if strings.TrimSpace(c.Ledger.DSN) == "" {
			if c.Ledger.Host == "" {
				errs = append(errs, "ledger: host must not be empty (or set ledger.dsn)")
			}
			if c.Ledger.Port <= 0 || c.Ledger.Port > 65535 {
				errs = append(errs, fmt.Sprintf("ledger: port must be 1-65535, got %d", c.Ledger.Port))
			}
			if c.Ledger.Database == "" {
				errs = append(errs, "ledger: database must not be empty")
			}
		}
		if c.Ledger.PoolMaxConns < 1 {
			errs = append(errs, "ledger: pool_max_conns must be >= 1")
		}
		if c.Ledger.PoolMinConns > c.Ledger.PoolMaxConns {
			errs = append(errs, "ledger: pool_min_conns must not exceed pool_max_conns")
		}
	case "sqlite":
		if c.Ledger.SQLitePath == "" {
			errs = append(errs, "ledger: sqlite_path must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown driver %q (valid: postgres, sqlite)", c.Ledger.Driver))
	}

	// Lock
	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "lock: backend redis requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("lock: unknown backend %q (valid: memory, redis)", c.Lock.Backend))
	}
	if c.Lock.TTL.Duration <= 0 {
		errs = append(errs, "lock: ttl must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: at least one broker is required")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.FlushInterval.Duration <= 0 {
			errs = append(errs, "s3: flush_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
