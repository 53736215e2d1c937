package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "sparqlfed:"
	redisScanCount = 500
)

// RedisHandler shares cached responses between gateway instances. Every
// entry is its own Redis key carrying its own expiry; flushes scan the
// project or endpoint prefix.
type RedisHandler struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisHandler connects to addr and verifies the connection.
func NewRedisHandler(addr string, db int, ttl time.Duration) (*RedisHandler, error) {
	if addr == "" {
		return nil, errors.New("redis cache requires an address")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisHandler{client: client, ttl: ttl}, nil
}

// Project names are limited to [A-Za-z0-9._-] and endpoint ids are hex, so
// the prefixes contain no glob metacharacters.
func redisKey(key Key) string { return redisKeyPrefix + key.String() }

func (r *RedisHandler) Put(ctx context.Context, key Key, value string) error {
	return r.client.Set(ctx, redisKey(key), value, r.ttl).Err()
}

func (r *RedisHandler) Get(ctx context.Context, key Key) (string, bool, error) {
	v, err := r.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisHandler) Contains(ctx context.Context, key Key) (bool, error) {
	n, err := r.client.Exists(ctx, redisKey(key)).Result()
	return n > 0, err
}

func (r *RedisHandler) Flush(ctx context.Context, key Key) error {
	return r.client.Del(ctx, redisKey(key)).Err()
}

func (r *RedisHandler) FlushEndpoint(ctx context.Context, project, endpointID string) error {
	return r.deletePrefix(ctx, redisKeyPrefix+EndpointPrefix(project, endpointID))
}

func (r *RedisHandler) FlushAll(ctx context.Context, project string) error {
	return r.deletePrefix(ctx, redisKeyPrefix+Namespace(project))
}

func (r *RedisHandler) deletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", redisScanCount).Iterator()
	batch := make([]string, 0, redisScanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanCount {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

func (r *RedisHandler) Close() error {
	return r.client.Close()
}
