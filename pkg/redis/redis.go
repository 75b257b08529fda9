package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned when a key is absent (or expired).
var ErrKeyNotFound = errors.New("redis: key not found")

// KeepTTL tells Set to preserve the key's current TTL.
const KeepTTL = goredis.KeepTTL

type Config interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

// Client is the subset of Redis the dispatch core relies on. The
// contract matters more than the vendor: TTLs are attached in the same
// operation as the write, SetNX is the conditional set-if-absent
// primitive, and Rename is the atomic set move used by the sync worker.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SUnion(ctx context.Context, keys ...string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Rename atomically moves src to dst, replacing dst.
	// Returns ErrKeyNotFound when src does not exist.
	Rename(ctx context.Context, src, dst string) error

	Ping(ctx context.Context) error
	Close() error
}

type client struct {
	rdb *goredis.Client
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config) (Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &client{rdb: rdb}, nil
}

func (c *client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

func (c *client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *client) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *client) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SAdd(ctx, key, args...).Err()
}

func (c *client) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SRem(ctx, key, args...).Err()
}

func (c *client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *client) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	return c.rdb.SUnion(ctx, keys...).Result()
}

func (c *client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *client) Rename(ctx context.Context, src, dst string) error {
	if err := c.rdb.Rename(ctx, src, dst).Err(); err != nil {
		// redis replies "no such key" for a missing source
		if err.Error() == "ERR no such key" {
			return ErrKeyNotFound
		}
		return err
	}
	return nil
}

func (c *client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *client) Close() error {
	return c.rdb.Close()
}
