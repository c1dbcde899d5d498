package domain

import (
	"context"
	"time"
)

// OfferCache provides fast lookups of immutable signed offer documents.
// Only the signed document belongs here; settlement state, balances, and
// allowances are read fresh from chain before every fill and are never
// cached.
type OfferCache interface {
	Set(ctx context.Context, offer Offer) error
	Get(ctx context.Context, id string) (Offer, error)
	GetByMaker(ctx context.Context, maker string) ([]Offer, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
