package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "storefront:profile"

// RedisKV keeps profile entries in Redis, namespaced by prefix and profile.
type RedisKV struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisOptions configures a Redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	Prefix   string
	Profile  string
	// TTL applies to every write; zero keeps entries until deleted.
	TTL time.Duration
}

// NewRedisKV builds a Redis-backed store.
func NewRedisKV(opts RedisOptions) (*RedisKV, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	profile := strings.TrimSpace(opts.Profile)
	if profile == "" {
		profile = "default"
	}
	return &RedisKV{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: opts.Password,
		}),
		keyPrefix: prefix + ":" + profile,
		ttl:       opts.TTL,
	}, nil
}

// Get resolves a key.
func (s *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set writes a key with the configured TTL.
func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

// Delete removes keys.
func (s *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, s.key(key))
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, full...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Close closes the Redis connection pool.
func (s *RedisKV) Close() error {
	return s.client.Close()
}

func (s *RedisKV) key(key string) string {
	return s.keyPrefix + ":" + key
}
