// Package redis caches estimates in Redis so replicas share results.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

const keyPrefix = "estimate:"

// Config holds connection and expiry settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Cache stores JSON-encoded estimates under estimate:<cert>.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

// New connects a Cache using cfg.
func New(cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Key returns the Redis key used for cert.
func Key(cert string) string {
	return keyPrefix + cert
}

// Get returns the cached estimate for cert.
func (c *Cache) Get(ctx context.Context, cert string) (estimate.Estimate, bool, error) {
	data, err := c.client.Get(ctx, Key(cert)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return estimate.Estimate{}, false, nil
	}
	if err != nil {
		return estimate.Estimate{}, false, fmt.Errorf("redis get %s: %w", Key(cert), err)
	}
	est, err := decode(data)
	if err != nil {
		return estimate.Estimate{}, false, err
	}
	return est, true, nil
}

// Set stores est with the configured TTL.
func (c *Cache) Set(ctx context.Context, cert string, est estimate.Estimate) error {
	data, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("marshal estimate: %w", err)
	}
	if err := c.client.Set(ctx, Key(cert), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", Key(cert), err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func decode(data []byte) (estimate.Estimate, error) {
	var est estimate.Estimate
	if err := json.Unmarshal(data, &est); err != nil {
		return estimate.Estimate{}, fmt.Errorf("decode cached estimate: %w", err)
	}
	return est, nil
}
