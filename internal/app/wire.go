package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/betbridge/internal/blob/s3"
	"github.com/alanyoungcy/betbridge/internal/cache/memory"
	"github.com/alanyoungcy/betbridge/internal/cache/redis"
	"github.com/alanyoungcy/betbridge/internal/config"
	"github.com/alanyoungcy/betbridge/internal/crypto"
	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/events"
	"github.com/alanyoungcy/betbridge/internal/events/kafka"
	"github.com/alanyoungcy/betbridge/internal/metrics"
	"github.com/alanyoungcy/betbridge/internal/notify"
	"github.com/alanyoungcy/betbridge/internal/platform/binance"
	"github.com/alanyoungcy/betbridge/internal/platform/chain"
	"github.com/alanyoungcy/betbridge/internal/pricing"
	"github.com/alanyoungcy/betbridge/internal/server/handler"
	"github.com/alanyoungcy/betbridge/internal/server/ws"
	"github.com/alanyoungcy/betbridge/internal/store/postgres"
	"github.com/alanyoungcy/betbridge/internal/store/sqlite"
)

// Dependencies bundles the concrete adapters the bridge runs on. It is built
// by Wire and released by the cleanup function Wire returns.
type Dependencies struct {
	Ledger   domain.Ledger
	Locks    domain.LockManager
	Chain    *chain.Client
	Exchange *binance.Futures
	Policy   pricing.Policy

	Events      *events.Fanout
	EventStream *redis.EventStream // nil without redis
	Journal     *s3blob.Journal    // nil without s3
	Hub         *ws.Hub            // nil without the status server

	Metrics *metrics.Metrics
	Checks  map[string]handler.Check
}

// Wire constructs every dependency from cfg. On failure everything opened so
// far is closed again.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
		Policy:  policyFrom(cfg),
	}

	// --- Ledger ---
	switch cfg.Ledger.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Ledger.DSN,
			Host:     cfg.Ledger.Host,
			Port:     cfg.Ledger.Port,
			Database: cfg.Ledger.Database,
			User:     cfg.Ledger.User,
			Password: cfg.Ledger.Password,
			SSLMode:  cfg.Ledger.SSLMode,
			MaxConns: cfg.Ledger.PoolMaxConns,
			MinConns: cfg.Ledger.PoolMinConns,

			StatementTimeout: cfg.Ledger.StatementTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		if cfg.Ledger.RunMigrations {
			applied, err := pgClient.Migrate(ctx)
			if err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "ledger migrations applied", slog.Any("files", applied))
			}
		}
		deps.Ledger = postgres.NewLedger(pgClient.Pool())
		deps.Checks["ledger"] = pgClient.Ping
	case "sqlite":
		ledger, err := sqlite.New(cfg.Ledger.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = ledger.Close() })
		deps.Ledger = ledger
		deps.Checks["ledger"] = ledger.Ping
	default:
		return fail(fmt.Errorf("wire: unknown ledger driver %q", cfg.Ledger.Driver))
	}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		redisClient = c
		deps.Checks["redis"] = c.Ping
	}

	if cfg.Lock.Backend == "redis" {
		if redisClient == nil {
			return fail(fmt.Errorf("wire: lock backend redis requires redis.enabled"))
		}
		deps.Locks = redis.NewLockManager(redisClient)
	} else {
		deps.Locks = memory.NewLockManager()
	}

	// --- Chain ---
	pk, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Chain.PrivateKey,
		EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
		KeyPassword:      cfg.Chain.KeyPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: signer key: %w", err))
	}
	signer := crypto.NewTxSigner(pk, cfg.Chain.ChainID)
	if cfg.Chain.SenderAddress != "" && signer.Address() != common.HexToAddress(cfg.Chain.SenderAddress) {
		return fail(fmt.Errorf("wire: signer key is for %s, not sender_address %s",
			signer.Address().Hex(), cfg.Chain.SenderAddress))
	}

	eth, endpoint, err := chain.Dial(ctx, cfg.Chain.RPC, cfg.Chain.Timeout.Duration, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	closers = append(closers, eth.Close)
	logger.InfoContext(ctx, "chain connected",
		slog.String("endpoint", endpoint),
		slog.String("sender", signer.Address().Hex()),
	)
	deps.Chain = chain.New(eth, signer, chain.Config{
		Contract:      cfg.Chain.Contract,
		GasLimit:      cfg.Chain.GasLimit,
		GasPriceGwei:  cfg.Chain.GasPriceGwei,
		Confirmations: cfg.Chain.Confirmations,
		MaxBlockRange: cfg.Chain.MaxBlockRange,
	}, logger)
	deps.Checks["chain"] = func(ctx context.Context) error {
		_, err := eth.BlockNumber(ctx)
		return err
	}

	// --- Exchange ---
	deps.Exchange = binance.New(binance.Config{
		BaseURL:           cfg.Exchange.BaseURL,
		APIKey:            cfg.Exchange.APIKey,
		SecretKey:         cfg.Exchange.SecretKey,
		Symbol:            cfg.Exchange.Symbol,
		Leverage:          cfg.Exchange.Leverage,
		MarginType:        strings.ToUpper(cfg.Exchange.MarginType),
		RecvWindowMs:      cfg.Exchange.RecvWindowMs,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
		Burst:             cfg.Exchange.Burst,
		Timeout:           cfg.Exchange.Timeout.Duration,
	}, deps.Policy, logger)
	if err := deps.Exchange.Prepare(ctx); err != nil {
		return fail(fmt.Errorf("wire: exchange setup: %w", err))
	}

	// --- Lifecycle event sinks ---
	var sinks []events.Sink

	if redisClient != nil {
		deps.EventStream = redis.NewEventStream(redisClient, cfg.Redis.EventStream, int64(cfg.Redis.StreamMaxLen))
		sinks = append(sinks, events.Sink{Name: "redis", Publisher: deps.EventStream})
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		closers = append(closers, func() { _ = producer.Close() })
		sinks = append(sinks, events.Sink{Name: "kafka", Publisher: producer})
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Journal = s3blob.NewJournal(s3blob.NewWriter(s3Client), cfg.S3.Prefix,
			cfg.S3.FlushInterval.Duration, 0, deps.Metrics, logger)
		deps.Checks["s3"] = s3Client.Health
		sinks = append(sinks, events.Sink{Name: "s3", Publisher: deps.Journal})
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger); notifier.Enabled() {
		sinks = append(sinks, events.Sink{Name: "notify", Publisher: notifier})
	}

	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(ws.Config{Symbol: cfg.Exchange.Symbol, Version: Version}, logger)
		sinks = append(sinks, events.Sink{Name: "ws", Publisher: deps.Hub})
	}

	deps.Events = events.NewFanout(sinks, deps.Metrics, logger)

	return deps, cleanup, nil
}

func policyFrom(cfg *config.Config) pricing.Policy {
	return pricing.Policy{
		SafebeltPct:   decimal.NewFromFloat(cfg.Algo.SafebeltTriggerPct),
		WinTriggerPct: decimal.NewFromFloat(cfg.Algo.WinTriggerPct),
		PriceTick:     decimal.NewFromFloat(cfg.Exchange.PriceTick),
		QuantityStep:  decimal.NewFromFloat(cfg.Exchange.QuantityStep),
	}
}
