package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/engine"
	"github.com/meridianxyz/fillbot/internal/executor"
	"github.com/meridianxyz/fillbot/internal/feed"
	"github.com/meridianxyz/fillbot/internal/pipeline"
	"github.com/meridianxyz/fillbot/internal/server"
	"github.com/meridianxyz/fillbot/internal/server/handler"
	"github.com/meridianxyz/fillbot/internal/server/ws"
	"github.com/meridianxyz/fillbot/internal/service"
	"github.com/meridianxyz/fillbot/internal/strategy"
)

// MakerMode signs and publishes offers. The bot acts purely as a maker: the
// offer API is the write surface, and no chain connection is held since
// settlement happens when takers fill.
func (a *App) MakerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting maker mode",
		slog.String("maker", deps.Wallet.Address().Hex()),
	)

	g, ctx := errgroup.WithContext(ctx)

	offerSvc := a.newOfferService(deps)
	fillSvc := a.newFillService(deps, false)

	a.startServer(ctx, g, deps, serverParts{
		offers: offerSvc,
		fills:  fillSvc,
	})

	// Hold the group open until shutdown even if the server is disabled.
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

// FillerMode is the full taker loop: offer feed in, strategy evaluation,
// signal execution against the settlement contract, plus the backfill and
// snapshot pipelines.
func (a *App) FillerMode(ctx context.Context, deps *Dependencies) error {
	wallet := deps.Wallet.Address()
	a.logger.InfoContext(ctx, "starting filler mode",
		slog.String("taker", wallet.Hex()),
		slog.String("strategy", a.cfg.Engine.Strategy),
		slog.Bool("dry_run", a.cfg.Engine.DryRun),
	)

	policy, err := a.newStrategy(wallet)
	if err != nil {
		return fmt.Errorf("app: build strategy: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	offerSvc := a.newOfferService(deps)
	fillSvc := a.newFillService(deps, true)

	// Feed: relay WebSocket events land in the store and on the bus.
	ingestor := feed.NewOfferIngestor(deps.OfferStore, deps.OfferCache, deps.SignalBus, a.logger)
	wsFeed := feed.NewRelayWSFeed(a.cfg.Relay.WsURL, nil, ingestor.HandleOffer, ingestor.HandleUpdate, a.logger)
	g.Go(func() error {
		err := wsFeed.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("relay feed: %w", err)
	})

	// Strategy loop: bus events in, fill signals out.
	signalCh := make(chan domain.FillSignal, 256)
	feeder := feed.NewOfferFeeder(deps.SignalBus, deps.OfferStore, deps.OfferCache, policy, signalCh, a.logger)
	g.Go(func() error {
		err := feeder.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("offer feeder: %w", err)
	})

	// Executor: signals in, fills out.
	exec := executor.NewExecutor(signalCh, fillSvc, deps.LockManager, wallet, a.logger)
	g.Go(func() error {
		err := exec.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("executor: %w", err)
	})

	// Pipeline: REST backfill and contract snapshot refresh.
	scraper := pipeline.NewOfferScraper(deps.RelayClient, ingestor, a.logger)
	if a.cfg.Pipeline.Enabled {
		refresher := pipeline.NewStateRefresher(deps.OfferStore, deps.Settlement, a.logger)
		orch := pipeline.NewOrchestrator(scraper, refresher, nil,
			a.cfg.Pipeline.PollInterval.Duration, a.cfg.Pipeline.ArchiveCron, a.logger)
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	a.startServer(ctx, g, deps, serverParts{
		offers:      offerSvc,
		fills:       fillSvc,
		scraper:     scraper,
		wsConnected: true,
	})

	return g.Wait()
}

// MonitorMode tracks offers without a signing key: the feed, backfill, and
// snapshot refresher run, and the API serves read-only views plus preflight
// dry-runs against real contract state.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	offerSvc := a.newOfferService(deps)
	fillSvc := a.newFillService(deps, false)

	ingestor := feed.NewOfferIngestor(deps.OfferStore, deps.OfferCache, deps.SignalBus, a.logger)
	wsFeed := feed.NewRelayWSFeed(a.cfg.Relay.WsURL, nil, ingestor.HandleOffer, ingestor.HandleUpdate, a.logger)
	g.Go(func() error {
		err := wsFeed.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("relay feed: %w", err)
	})

	scraper := pipeline.NewOfferScraper(deps.RelayClient, ingestor, a.logger)
	if a.cfg.Pipeline.Enabled {
		refresher := pipeline.NewStateRefresher(deps.OfferStore, deps.Settlement, a.logger)
		orch := pipeline.NewOrchestrator(scraper, refresher, nil,
			a.cfg.Pipeline.PollInterval.Duration, a.cfg.Pipeline.ArchiveCron, a.logger)
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	a.startServer(ctx, g, deps, serverParts{
		offers:      offerSvc,
		fills:       fillSvc,
		scraper:     scraper,
		wsConnected: true,
	})

	return g.Wait()
}

// ArchiveMode runs only the cold-storage job: settled fills and audit rows
// older than the retention window move to S3 on the configured cron.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Pipeline.ArchiveRetentionDays),
		slog.String("cron", a.cfg.Pipeline.ArchiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
	orch := pipeline.NewOrchestrator(nil, nil, archiver,
		a.cfg.Pipeline.PollInterval.Duration, a.cfg.Pipeline.ArchiveCron, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	a.startServer(ctx, g, deps, serverParts{
		offers:   a.newOfferService(deps),
		fills:    a.newFillService(deps, false),
		archiver: archiver,
	})

	return g.Wait()
}

// newOfferService builds the maker-side service. The signer may be absent
// (monitor/archive); offer creation then reports a configuration error.
func (a *App) newOfferService(deps *Dependencies) *service.OfferService {
	var signer service.OfferSigner
	if deps.Signer != nil {
		signer = deps.Signer
	}
	svc := service.NewOfferService(
		deps.OfferStore, deps.OfferCache, deps.RateLimiter, deps.SignalBus,
		deps.AuditStore, signer, deps.Notifier,
		a.cfg.Limits.OffersPerMinute, a.logger,
	)
	return svc.WithRelay(deps.RelayClient)
}

// newFillService builds the taker-side service. With submit false the chain
// write path stays unwired: listing always works, preflight works when a
// chain client is present, and execution reports a configuration error.
func (a *App) newFillService(deps *Dependencies, submit bool) *service.FillService {
	preflight := engine.NewPreflightValidator(deps.Verifier)

	var (
		state     service.StateReader
		balances  service.BalanceReader
		submitter service.FillSubmitter
		gate      *engine.AllowanceGate
		wallet    common.Address
	)
	if deps.Settlement != nil {
		state = deps.Settlement
	}
	if deps.Collateral != nil {
		balances = deps.Collateral
	}
	if submit && deps.Settlement != nil && deps.Wallet != nil {
		submitter = deps.Settlement
		gate = engine.NewAllowanceGate(deps.Collateral)
		wallet = deps.Wallet.Address()
	}

	return service.NewFillService(
		deps.OfferStore, deps.FillStore, deps.OfferCache, deps.RateLimiter,
		deps.SignalBus, deps.AuditStore, preflight, gate,
		state, submitter, balances, deps.Notifier,
		wallet, common.HexToAddress(a.cfg.Chain.SettlementAddress),
		a.cfg.Limits.FillsPerMinute,
		a.cfg.Engine.DryRun || !submit,
		a.logger,
	)
}

// newStrategy builds the configured fill policy from the engine section.
func (a *App) newStrategy(wallet common.Address) (strategy.Strategy, error) {
	cfg := strategy.Config{
		Wallet:    wallet,
		FillRatio: a.cfg.Engine.FillRatio,
		SignalTTL: 45 * time.Second,
	}
	if a.cfg.Engine.MinOfferSize != "" {
		min, err := domain.AmountFromDecimal(a.cfg.Engine.MinOfferSize)
		if err != nil {
			return nil, fmt.Errorf("app: engine.min_offer_size: %w", err)
		}
		cfg.MinOfferSize = min
	}

	reg := strategy.NewRegistry()
	reg.Register("full", strategy.NewFullFill(cfg))
	ratio, err := strategy.NewRatioFill(cfg)
	if err != nil {
		return nil, err
	}
	reg.Register("ratio", ratio)

	return reg.Get(a.cfg.Engine.Strategy)
}

// serverParts carries the mode-dependent pieces of the HTTP server.
type serverParts struct {
	offers      *service.OfferService
	fills       *service.FillService
	scraper     handler.Runner // nil when the mode runs no scraper
	archiver    handler.Runner // nil when the mode runs no archiver
	wsConnected bool
}

// startServer wires and launches the HTTP server plus the WebSocket hub when
// the server section is enabled. It registers goroutines on g; it does not
// block.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, parts serverParts) {
	if !a.cfg.Server.Enabled {
		a.logger.Info("http server disabled")
		return
	}

	startedAt := time.Now().UTC()

	health := handler.NewHealthHandler(a.logger).
		WithComponent("postgres", deps.PG).
		WithComponent("redis", deps.Redis).
		WithComponent("relay", deps.RelayClient)
	if deps.ChainClient != nil {
		health = health.WithComponent("chain", deps.ChainClient)
	}

	status := handler.NewStatusHandler(func(r *http.Request) domain.BotStatus {
		var tracked int64
		if n, err := deps.OfferStore.Count(r.Context()); err == nil {
			tracked = n
		}
		return domain.BotStatus{
			Mode:          a.cfg.Mode,
			WSConnected:   parts.wsConnected,
			UptimeSeconds: int64(time.Since(startedAt).Seconds()),
			TrackedOffers: tracked,
			StrategyName:  a.cfg.Engine.Strategy,
		}
	})

	handlers := server.Handlers{
		Health: health,
		Status: status,
	}
	if parts.offers != nil {
		handlers.Offers = handler.NewOfferHandler(parts.offers, a.logger)
	}
	if parts.fills != nil {
		handlers.Fills = handler.NewFillHandler(parts.fills, a.logger)
	}
	if parts.scraper != nil || parts.archiver != nil {
		handlers.Pipeline = handler.NewPipelineHandler(parts.scraper, parts.archiver, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:         a.cfg.Mode,
		StrategyName: a.cfg.Engine.Strategy,
		StartedAt:    startedAt,
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("ws hub: %w", err)
	})

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: 600,
		RateLimiter:        deps.RateLimiter,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		err := srv.Start()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
