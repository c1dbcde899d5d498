package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// offerTTL bounds how long a cached offer document lives. Documents are
// immutable, so the TTL only bounds memory, not staleness; an offer that
// expires from the cache is re-read from Postgres or the relay.
const offerTTL = time.Hour

// OfferCache implements domain.OfferCache using Redis hashes with JSON-
// serialized offer documents and a maker index.
//
// Only the signed document is cached. Settlement state, balances, and
// allowances are deliberately absent: the engine reads those fresh from the
// contract before every fill, and caching them could mask a race.
//
// Key schema:
//
//	offer:{id}           - hash with field "data" containing JSON
//	offer:maker:{addr}   - set of offer IDs signed by the maker
type OfferCache struct {
	rdb *redis.Client
}

// NewOfferCache creates an OfferCache backed by the given Client.
func NewOfferCache(c *Client) *OfferCache {
	return &OfferCache{rdb: c.Underlying()}
}

func offerKey(id string) string       { return "offer:" + id }
func offerMakerKey(addr string) string { return "offer:maker:" + addr }

// Set stores an offer document and indexes it under its maker.
func (oc *OfferCache) Set(ctx context.Context, offer domain.Offer) error {
	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("redis: marshal offer %s: %w", offer.ID, err)
	}

	key := offerKey(offer.ID)
	makerKey := offerMakerKey(offer.Maker.Hex())

	pipe := oc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, offerTTL)
	pipe.SAdd(ctx, makerKey, offer.ID)
	pipe.Expire(ctx, makerKey, offerTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set offer %s: %w", offer.ID, err)
	}
	return nil
}

// Get retrieves an offer document by its digest id.
// It returns domain.ErrNotFound when the key does not exist.
func (oc *OfferCache) Get(ctx context.Context, id string) (domain.Offer, error) {
	data, err := oc.rdb.HGet(ctx, offerKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("redis: get offer %s: %w", id, err)
	}

	var offer domain.Offer
	if err := json.Unmarshal(data, &offer); err != nil {
		return domain.Offer{}, fmt.Errorf("redis: unmarshal offer %s: %w", id, err)
	}
	return offer, nil
}

// GetByMaker returns all cached offers signed by the given maker address.
// Index entries whose documents have already expired are skipped.
func (oc *OfferCache) GetByMaker(ctx context.Context, maker string) ([]domain.Offer, error) {
	ids, err := oc.rdb.SMembers(ctx, offerMakerKey(maker)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: offers by maker %s: %w", maker, err)
	}

	var offers []domain.Offer
	for _, id := range ids {
		offer, err := oc.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// Invalidate removes an offer document and its maker index entry.
func (oc *OfferCache) Invalidate(ctx context.Context, id string) error {
	// Read the document first so the maker index can be cleaned up.
	offer, err := oc.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate offer %s: %w", id, err)
	}

	pipe := oc.rdb.TxPipeline()
	pipe.Del(ctx, offerKey(id))
	if err == nil {
		pipe.SRem(ctx, offerMakerKey(offer.Maker.Hex()), id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate offer %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OfferCache = (*OfferCache)(nil)
