// Package cachemem is a process-local TTL cache for attestation
// verification results.
package cachemem

import (
	"context"
	"sync"
	"time"

	"github.com/nathancole636-ui/my-lead-poet/internal/domain"
)

type entry struct {
	value     domain.VerificationResult
	expiresAt time.Time
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   func() time.Time
}

func New() *Cache {
	return NewWithClock(time.Now)
}

func NewWithClock(clock func() time.Time) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

func (c *Cache) Get(_ context.Context, key string) (*domain.VerificationResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.clock().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := e.value
	return &value, true, nil
}

func (c *Cache) Put(_ context.Context, key string, value domain.VerificationResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.clock().Add(ttl)
	}
	c.entries[key] = entry{value: value, expiresAt: expiresAt}
	return nil
}
