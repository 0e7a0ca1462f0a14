// Package redisstore backs the result cache with Redis so computed payloads
// survive restarts and are shared across replicas. Entries are written without
// a Redis TTL: staleness is decided by the policy engine from ComputedAt, and
// a stale entry must stay retrievable after a failed refresh.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ethpandaops/xatu-dashboard/internal/cache"
	"github.com/ethpandaops/xatu-dashboard/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) { o.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

var _ cache.Store = (*Client)(nil)

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveStoreOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	start := time.Now()
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveStoreOp("get", nil, time.Since(start).Seconds())
		return cache.Entry{}, false, nil
	}
	observability.ObserveStoreOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redis GET %q: %w", key, err)
	}

	var e cache.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// a fresh Set overwrites the bad envelope on the next refresh
		return cache.Entry{}, false, fmt.Errorf("redis GET %q: decode envelope: %w", key, err)
	}
	return e, true, nil
}

func (c *Client) Set(ctx context.Context, key string, e cache.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis SET %q: encode envelope: %w", key, err)
	}

	start := time.Now()
	err = c.rdb.Set(ctx, key, raw, 0).Err()
	observability.ObserveStoreOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observability.ObserveStoreOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

// DelPrefix scans for keys under prefix and deletes them in batches. Cache
// keys carry no glob metacharacters, so prefix+"*" is a literal match.
func (c *Client) DelPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, nil
	}

	start := time.Now()
	removed := 0
	batch := make([]string, 0, delBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, batch...).Result()
		removed += int(n)
		batch = batch[:0]
		return err
	}

	iter := c.rdb.Scan(ctx, 0, prefix+"*", delBatchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= delBatchSize {
			if err := flush(); err != nil {
				observability.ObserveStoreOp("del_prefix", err, time.Since(start).Seconds())
				return removed, fmt.Errorf("redis DEL prefix %q: %w", prefix, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		observability.ObserveStoreOp("del_prefix", err, time.Since(start).Seconds())
		return removed, fmt.Errorf("redis SCAN prefix %q: %w", prefix, err)
	}
	err := flush()
	observability.ObserveStoreOp("del_prefix", err, time.Since(start).Seconds())
	if err != nil {
		return removed, fmt.Errorf("redis DEL prefix %q: %w", prefix, err)
	}
	return removed, nil
}

const delBatchSize = 512

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
