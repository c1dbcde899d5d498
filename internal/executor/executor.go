// Package executor consumes fill signals and drives them through the fill
// service one at a time per offer. It dedups signals, drops stale ones, and
// serializes concurrent attempts on the same offer with a distributed lock.
// Failed fills are never retried here: the next signal for the offer starts
// a fresh attempt with fresh reads.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// lockTTL bounds how long one fill attempt may hold an offer's lock. A
// crashed process frees the offer for other instances after this long.
const lockTTL = 3 * time.Minute

// FillRunner executes a fill end to end. Implemented by the service layer.
type FillRunner interface {
	ExecuteFill(ctx context.Context, req domain.FillRequest) (domain.Fill, error)
}

// Executor reads fill signals from a channel, applies deduplication,
// expiry, and per-offer locking, then executes fills through the
// FillRunner.
type Executor struct {
	signalCh <-chan domain.FillSignal
	fillSvc  FillRunner
	locks    domain.LockManager
	dedup    *Dedup
	wallet   common.Address
	logger   *slog.Logger

	cleanupInterval time.Duration
}

// NewExecutor creates an Executor that reads signals from signalCh and
// executes fills via fillSvc, serializing per offer through locks.
func NewExecutor(
	signalCh <-chan domain.FillSignal,
	fillSvc FillRunner,
	locks domain.LockManager,
	wallet common.Address,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		signalCh:        signalCh,
		fillSvc:         fillSvc,
		locks:           locks,
		dedup:           NewDedup(2 * time.Minute),
		wallet:          wallet,
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run starts the executor's main loop. It processes signals until the
// context is cancelled, at which point it drains any remaining signals in
// the channel and returns.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()

		case sig, ok := <-e.signalCh:
			if !ok {
				// Channel closed; shut down.
				return nil
			}
			e.process(ctx, sig)

		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// process handles a single fill signal through the full validation and
// execution pipeline.
func (e *Executor) process(ctx context.Context, sig domain.FillSignal) {
	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("source", sig.Source),
		slog.String("offer_id", sig.OfferID),
		slog.String("requested", sig.RequestedTakerAmount.String()),
	)

	// 1. Deduplication, on the signal itself and on the offer. Strategies
	// re-emit for an offer on every bus event; one attempt per offer per
	// dedup window is enough, whatever it returned.
	if e.dedup.IsDuplicate(sig.ID) {
		log.Debug("signal deduplicated, skipping")
		return
	}
	if e.dedup.IsDuplicate("offer:" + sig.OfferID) {
		log.Debug("offer recently attempted, skipping")
		return
	}

	// 2. Expiry check.
	if sig.Expired(time.Now().UTC()) {
		log.Warn("signal expired, skipping",
			slog.Time("expires_at", sig.ExpiresAt),
		)
		return
	}

	// 3. Per-offer lock so concurrent instances never double-submit.
	unlock, err := e.locks.Acquire(ctx, "fill:"+sig.OfferID, lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			log.Debug("offer locked by another fill attempt, skipping")
		} else {
			log.Error("lock acquire failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	defer unlock()

	// 4. Execute. No retry on any failure: the service records the
	// rejection and the lock releases for whoever tries next.
	fill, err := e.fillSvc.ExecuteFill(ctx, domain.FillRequest{
		OfferID:              sig.OfferID,
		RequestedTakerAmount: sig.RequestedTakerAmount,
		Strategy:             sig.Source,
	})
	if err != nil {
		log.Warn("fill attempt failed",
			slog.String("fill_id", fill.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	log.Info("fill executed",
		slog.String("fill_id", fill.ID),
		slog.String("status", string(fill.Status)),
		slog.String("tx_hash", fill.TxHash),
	)
}

// drain processes any signals already buffered in the channel after context
// cancellation. This ensures in-flight signals are not silently dropped.
func (e *Executor) drain() {
	for {
		select {
		case sig, ok := <-e.signalCh:
			if !ok {
				return
			}
			e.logger.Warn("draining signal after shutdown",
				slog.String("signal_id", sig.ID),
			)
			// A short-lived context so draining never hangs on external
			// calls during shutdown.
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.process(drainCtx, sig)
			cancel()
		default:
			return
		}
	}
}

// SetDedupTTL replaces the dedup instance with a new one using the given TTL.
// This is useful for testing or runtime reconfiguration.
func (e *Executor) SetDedupTTL(ttl time.Duration) {
	e.dedup = NewDedup(ttl)
}

// SetCleanupInterval changes how often the dedup map is garbage-collected.
// Must be called before Run.
func (e *Executor) SetCleanupInterval(d time.Duration) {
	e.cleanupInterval = d
}

// Wallet returns the wallet address this executor is configured with.
func (e *Executor) Wallet() common.Address {
	return e.wallet
}

var _ fmt.Stringer = (*Executor)(nil)

// String returns a human-readable description of the executor.
func (e *Executor) String() string {
	return fmt.Sprintf("Executor(wallet=%s)", e.wallet.Hex())
}
