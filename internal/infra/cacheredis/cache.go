// Package cacheredis backs the attestation verification cache with redis,
// so a fleet of gateways shares verification work across processes.
package cacheredis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

const keyPrefix = "attestation:verified:"

type Cache struct {
	client *redis.Client
}

func New(addr, password string, db int) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client}, nil
}

func (c *Cache) Get(ctx context.Context, key string) (*domain.VerificationResult, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var result domain.VerificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// A corrupt cache entry is treated as a miss; the envelope gets
		// re-verified and the entry overwritten.
		return nil, false, nil
	}
	return &result, true, nil
}

func (c *Cache) Put(ctx context.Context, key string, value domain.VerificationResult, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, raw, ttl).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
