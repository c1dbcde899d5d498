package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// SignalBus carries offer and fill events between processes. Pub/Sub gives
// at-most-once live delivery for the WebSocket mirror and the executor;
// streams keep a trimmed, replayable history for operators.
type SignalBus struct {
	rdb *redis.Client
}

// streamMaxLen bounds stream growth; XADD trims with MAXLEN ~ so old
// entries fall off without an explicit cleanup job.
const streamMaxLen int64 = 10000

func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish fans payload out to current subscribers of channel. Nobody
// listening is not an error.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription on channel and pumps payloads into the
// returned channel until ctx is cancelled, at which point both the
// subscription and the returned channel are closed. Channels containing
// glob metacharacters subscribe by pattern.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var sub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		sub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		sub = sb.rdb.Subscribe(ctx, channel)
	}

	// Receive the subscription confirmation so a bad connection surfaces
	// here rather than as a silently dead channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// StreamAppend records payload on the named stream under a single
// "payload" field.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start). The read never blocks; an empty stream yields a nil slice.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1, // go-redis sends BLOCK 0 (wait forever) unless negative
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var msgs []domain.StreamMessage
	for _, s := range res {
		for _, m := range s.Messages {
			raw, ok := m.Values["payload"]
			if !ok {
				continue
			}
			var data []byte
			switch v := raw.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}
			msgs = append(msgs, domain.StreamMessage{ID: m.ID, Payload: data})
		}
	}
	return msgs, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
