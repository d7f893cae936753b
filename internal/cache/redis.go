package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const namespace = "txcode:"

// Redis is the Codes implementation for deployments where the API runs
// more than one replica; expiry is delegated to Redis TTLs.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Put(ctx context.Context, key, code string, ttl time.Duration) error {
	return r.client.Set(ctx, namespace+key, code, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, namespace+key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, namespace+key).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
