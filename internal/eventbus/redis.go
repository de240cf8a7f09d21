package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// RedisBackend persists change events to Redis lists keyed by partition,
// one list per partition under prefix+"partition:<n>". Grounded directly on
// queue/redis/queue.go's RPush/BLPop enqueue/dequeue shape.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// RedisConfig configures the Redis-backed queue.
type RedisConfig struct {
	URL    string
	Prefix string
}

// NewRedisBackend connects to Redis and verifies connectivity with a ping.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "memento:eventbus:"
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

func (b *RedisBackend) Close() error { return b.client.Close() }

func (b *RedisBackend) key(partition int) string {
	return fmt.Sprintf("%spartition:%d", b.prefix, partition)
}

// Push appends a change event to a partition's durable list.
func (b *RedisBackend) Push(ctx context.Context, partition int, e graphmodel.ChangeEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.RPush(ctx, b.key(partition), payload).Err()
}

// Pop blocks up to timeout for the next event on a partition's durable list.
func (b *RedisBackend) Pop(ctx context.Context, partition int, timeout time.Duration) (*graphmodel.ChangeEvent, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := b.client.BLPop(opCtx, timeout, b.key(partition)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}

	var e graphmodel.ChangeEvent
	if err := json.Unmarshal([]byte(result[1]), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Depth reports how many events are queued on a partition's durable list.
func (b *RedisBackend) Depth(ctx context.Context, partition int) (int64, error) {
	return b.client.LLen(ctx, b.key(partition)).Result()
}
