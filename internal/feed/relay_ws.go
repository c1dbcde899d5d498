// Package feed moves offers from the relay into the local stores and from
// the local event bus into the strategy layer. It is delivery plumbing
// only: nothing here validates an offer beyond parsing it.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/platform/relay"
)

// OfferHandler is called for each full offer document from the feed.
type OfferHandler func(ctx context.Context, offer domain.Offer)

// UpdateHandler is called for each lifecycle update from the feed.
type UpdateHandler func(ctx context.Context, update relay.OfferUpdate)

// RelayWSFeed connects to the relay's offer feed, subscribes to the
// configured offer kinds, and invokes the provided handlers on each event.
// It reconnects on disconnect.
type RelayWSFeed struct {
	wsURL     string
	kinds     []string
	onOffer   OfferHandler
	onUpdate  UpdateHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewRelayWSFeed creates a feed subscribing to the given offer kinds; an
// empty kinds slice subscribes to all of them.
func NewRelayWSFeed(wsURL string, kinds []string, onOffer OfferHandler, onUpdate UpdateHandler, logger *slog.Logger) *RelayWSFeed {
	return &RelayWSFeed{
		wsURL:    wsURL,
		kinds:    kinds,
		onOffer:  onOffer,
		onUpdate: onUpdate,
		logger:   logger.With(slog.String("component", "relay_ws_feed")),
		done:     make(chan struct{}),
	}
}

// Run connects, subscribes, and runs until ctx is cancelled. Reconnects
// with backoff on disconnect.
func (f *RelayWSFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("relay ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *RelayWSFeed) runConnection(ctx context.Context) error {
	client := relay.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnOffer(func(offer domain.Offer) {
		if f.onOffer != nil {
			f.onOffer(context.Background(), offer)
		}
	})
	client.OnUpdate(func(update relay.OfferUpdate) {
		if f.onUpdate != nil {
			f.onUpdate(context.Background(), update)
		}
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.Subscribe(ctx, f.kinds); err != nil {
		return err
	}
	f.logger.Info("relay ws subscribed", slog.Int("kinds", len(f.kinds)))

	<-ctx.Done()
	return ctx.Err()
}

// Close stops the feed.
func (f *RelayWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
