package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PostcardAgent/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPollTimeout = 5 * time.Second

// RedisQueue 基于 list 的队列，处理中的消息暂存在 <key>:processing 直到 Ack
type RedisQueue struct {
	client     *redis.Client
	key        string
	processing string
}

// NewRedisQueue 连接 redis，并把上次崩溃遗留在处理列表中的消息放回队列
func NewRedisQueue(addr, password string, db int, key string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	q := &RedisQueue{client: client, key: key, processing: key + ":processing"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	n, err := q.requeueProcessing(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	if n > 0 {
		logger.Warn("requeued unacked messages", zap.String("queue", key), zap.Int("count", n))
	}
	return q, nil
}

func (q *RedisQueue) requeueProcessing(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeue processing list: %w", err)
		}
		n++
	}
}

// Receive 阻塞等待下一条消息
func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		body, err := q.client.BRPopLPush(ctx, q.key, q.processing, redisPollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("redis receive: %w", err)
		}
		return NewDelivery([]byte(body), func() error {
			return q.client.LRem(context.Background(), q.processing, 1, body).Err()
		}), nil
	}
}

// Publish 左进右出
func (q *RedisQueue) Publish(ctx context.Context, body []byte) error {
	if err := q.client.LPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
