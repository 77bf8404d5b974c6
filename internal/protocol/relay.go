package protocol

import (
	"context"

	"github.com/redis/go-redis/v9"

	"quorum/internal/logging"
)

// Relay mirrors session events to a secondary pub/sub channel so external
// observers can follow a run without holding the websocket. Delivery is
// best-effort; the primary stream never waits on it.
type Relay interface {
	Publish(ctx context.Context, channel string, payload []byte)
	Close() error
}

// RedisRelay publishes events over Redis pub/sub.
type RedisRelay struct {
	client *redis.Client
}

// NewRedisRelay connects to the Redis instance at the given URL
// (e.g. redis://localhost:6379/0).
func NewRedisRelay(url string) (*RedisRelay, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisRelay{client: redis.NewClient(opt)}, nil
}

// Publish sends the payload to the channel. Failures are logged and
// swallowed; the relay is a mirror, not a source of truth.
func (r *RedisRelay) Publish(ctx context.Context, channel string, payload []byte) {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		logging.Get(logging.CategoryRelay).Warn("Publish to %s failed: %v", channel, err)
	}
}

// Close releases the Redis connection.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

// NopRelay discards everything. Used when no relay URL is configured.
type NopRelay struct{}

func (NopRelay) Publish(context.Context, string, []byte) {}
func (NopRelay) Close() error                            { return nil }
