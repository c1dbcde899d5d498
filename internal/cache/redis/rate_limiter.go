package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianxyz/fillbot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter throttles this operator's own request volume (relay calls,
// offer posting, HTTP API) with a sliding window over a Redis sorted set.
// The window check and the count are one atomic Lua call, so concurrent
// processes sharing a key cannot both sneak under the limit. It plays no
// part in fill validation.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
}

// waitPollInterval paces Wait's recheck loop.
const waitPollInterval = 50 * time.Millisecond

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

// Allow records and permits one request for key unless the last window
// already holds limit requests.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.slidingWindow.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		time.Now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(res))
	}
	return res[0] == 1, nil
}

// Wait blocks until key admits a request at 1/s, or ctx is cancelled.
// Callers needing other limits should loop over Allow themselves.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
