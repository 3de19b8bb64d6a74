package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Queue backed by a redis list, for deployments where the
// HTTP frontend and the worker of one backend run as separate processes.
// Ordering and the single-consumer discipline are unchanged: one worker
// BRPOPs, submitters LPUSH.
type RedisQueue struct {
	client *redis.Client
	key    string
	block  time.Duration
}

type RedisQueueConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	// BlockTimeout bounds each BRPOP so Dequeue can notice context
	// cancellation between polls.
	BlockTimeout time.Duration
}

func NewRedisQueue(cfg RedisQueueConfig) *RedisQueue {
	if cfg.Key == "" {
		cfg.Key = "tenbio:jobs"
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	return &RedisQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key:   cfg.Key,
		block: cfg.BlockTimeout,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := q.client.BRPop(ctx, q.block, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("redis dequeue: %w", err)
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			return "", fmt.Errorf("redis dequeue: unexpected reply %v", res)
		}
		return res[1], nil
	}
}

func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the underlying client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
