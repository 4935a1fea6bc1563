// Package revocation tracks access tokens invalidated before their expiry.
package revocation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type RedisDenylist struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client, prefix: "revoked:access:", now: time.Now}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.prefix+jti, 1, ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	_, err := d.client.Get(ctx, d.prefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryDenylist is used when no redis is configured and in tests.
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: map[string]time.Time{}, now: time.Now}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	if jti == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[jti] = until
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.entries[jti]
	if !ok {
		return false, nil
	}
	if d.now().After(until) {
		delete(d.entries, jti)
		return false, nil
	}
	return true, nil
}
