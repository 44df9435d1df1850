package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a thin read-through layer over redis for aggregate views (device
// lists, company credit rollups). It is advisory: every method on a nil
// *Cache is a no-op, so a deployment without redis just serves from sqlite.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to redis and pings it once so misconfiguration fails at boot.
func New(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %q: %w", addr, err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// DeviceListKey keys the cached device list for one company.
func DeviceListKey(companyID string) string { return "devices:" + companyID }

// CreditsKey keys the cached ledger view for one company.
func CreditsKey(companyID string) string { return "credits:" + companyID }

// GetJSON loads a cached value into dst. Returns false on miss or when the
// cache is disabled; cache errors degrade to a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	return true
}

// SetJSON stores a value under the configured TTL, best effort.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value for %q: %w", key, err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate deletes the given keys. Readers tolerate brief staleness, so a
// failed delete only shortens nothing; the TTL bounds it.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("invalidate cache keys %v: %w", keys, err)
	}
	return nil
}
