package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CachedSecret resolves one secret and keeps it for a TTL. It satisfies
// broker.TokenSource, so a rotated broker token is picked up without a
// restart.
type CachedSecret struct {
	provider Provider
	key      string
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	value     string
	fetchedAt time.Time
}

// NewCachedSecret creates a cached resolver for key. A non-positive ttl
// defaults to five minutes.
func NewCachedSecret(provider Provider, key string, ttl time.Duration) *CachedSecret {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSecret{
		provider: provider,
		key:      key,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Token returns the secret value, refreshing it once the TTL has passed.
// If a refresh fails and a previous value exists, the previous value is
// returned.
func (c *CachedSecret) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value, nil
	}

	value, err := c.provider.Get(ctx, c.key)
	if err != nil {
		if !c.fetchedAt.IsZero() {
			slog.Warn("Secret refresh failed, using cached value",
				"key", c.key, "provider", c.provider.Name(), "error", err)
			return c.value, nil
		}
		return "", fmt.Errorf("failed to resolve secret %s from %s: %w", c.key, c.provider.Name(), err)
	}

	c.value = value
	c.fetchedAt = c.now()
	return value, nil
}
