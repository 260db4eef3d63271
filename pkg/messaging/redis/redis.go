package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fieldserve/sms-engine/pkg/messaging"
)

const popTimeout = 2 * time.Second

type RedisQueue struct {
	client *redis.Client
	logger *zerolog.Logger
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

func NewRedisQueue(config Config, logger *zerolog.Logger) (messaging.Queue, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{client: client, logger: logger}, nil
}

func (q *RedisQueue) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return q.client.LPush(ctx, topic, data).Err()
}

// Consume pops from the topic list until ctx is cancelled. Pop errors
// other than timeouts are logged and retried after a short pause.
func (q *RedisQueue) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	out := make(chan []byte, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			res, err := q.client.BRPop(ctx, popTimeout, topic).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
					continue
				}
				q.logger.Warn().Err(err).Str("topic", topic).Msg("queue pop failed")
				time.Sleep(time.Second)
				continue
			}
			// BRPop returns [key, value]
			if len(res) == 2 {
				out <- []byte(res[1])
			}
		}
	}()

	return out, nil
}

func (q *RedisQueue) Depth(ctx context.Context, topic string) (int64, error) {
	return q.client.LLen(ctx, topic).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
