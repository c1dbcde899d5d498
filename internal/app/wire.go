package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/meridianxyz/fillbot/internal/blob/s3"
	"github.com/meridianxyz/fillbot/internal/cache/redis"
	"github.com/meridianxyz/fillbot/internal/config"
	"github.com/meridianxyz/fillbot/internal/crypto"
	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/notify"
	"github.com/meridianxyz/fillbot/internal/platform/chain"
	"github.com/meridianxyz/fillbot/internal/platform/relay"
	"github.com/meridianxyz/fillbot/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// Chain, wallet, and S3 members are nil in modes that do not use them.
type Dependencies struct {
	// Stores
	OfferStore domain.OfferStore
	FillStore  domain.FillStore
	AuditStore domain.AuditStore

	// Caches and coordination
	OfferCache  domain.OfferCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Chain
	ChainClient *chain.Client
	Wallet      *chain.Wallet
	Collateral  *chain.ERC20
	Settlement  *chain.Settlement

	// Relay
	RelayClient *relay.Client

	// Signing
	Signer   *crypto.Signer
	Verifier *crypto.Verifier

	// Notifications
	Notifier *notify.Notifier

	// Raw clients kept for health pings.
	PG    *postgres.Client
	Redis *redis.Client
}

// needsChain returns true for modes that read or write the settlement
// contract.
func needsChain(mode string) bool {
	switch mode {
	case "filler", "monitor":
		return true
	default:
		return false
	}
}

// needsSigner returns true for modes that sign with the wallet key: makers
// sign offers, fillers sign transactions.
func needsSigner(mode string) bool {
	switch mode {
	case "maker", "filler":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that touch object storage.
func needsS3(mode string) bool {
	return mode == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to call on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PG = pgClient
	deps.OfferStore = postgres.NewOfferStore(pool)
	deps.FillStore = postgres.NewFillStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.OfferCache = redis.NewOfferCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Chain ---
	settlementAddr := common.HexToAddress(cfg.Chain.SettlementAddress)
	if needsChain(cfg.Mode) {
		chainClient, err := chain.New(ctx, chain.ClientConfig{
			RPCURL:         cfg.Chain.RPCURL,
			ChainID:        cfg.Chain.ChainID,
			ConfirmTimeout: cfg.Chain.ConfirmTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)
		deps.ChainClient = chainClient
	}

	// --- Wallet and signing ---
	if needsSigner(cfg.Mode) {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey: cfg.Wallet.PrivateKey,
			KeyfilePath:   cfg.Wallet.EncryptedKeyPath,
			KeyPassword:   cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}

		deps.Wallet, err = chain.NewWallet(keyHex)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}

		deps.Signer, err = crypto.NewSigner(keyHex, crypto.NewDomain(cfg.Chain.ChainID, settlementAddr))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
	}

	deps.Verifier = crypto.NewVerifier(crypto.NewDomain(cfg.Chain.ChainID, settlementAddr))

	// Contract bindings. The wallet may be nil (monitor mode): views still
	// work, only transaction submission needs a key.
	if deps.ChainClient != nil {
		deps.Settlement, err = chain.NewSettlement(deps.ChainClient, deps.Wallet, settlementAddr)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: settlement binding: %w", err)
		}
		deps.Collateral, err = chain.NewERC20(deps.ChainClient, deps.Wallet, common.HexToAddress(cfg.Chain.CollateralAddress))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: collateral binding: %w", err)
		}
	}

	// --- Relay ---
	var hmacAuth *crypto.HMACAuth
	if cfg.Relay.ApiKey != "" {
		hmacAuth = &crypto.HMACAuth{
			Key:        cfg.Relay.ApiKey,
			Secret:     cfg.Relay.ApiSecret,
			Passphrase: cfg.Relay.ApiPassphrase,
		}
	}
	deps.RelayClient = relay.NewClient(cfg.Relay.BaseURL, hmacAuth)

	// --- S3 blob storage ---
	if needsS3(cfg.Mode) {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			postgres.NewFillStore(pool),
			postgres.NewAuditStore(pool),
			deps.AuditStore,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
