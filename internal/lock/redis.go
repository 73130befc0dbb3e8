// Package lock implements cardauth.CardLock with the same Redis SetNX
// pattern pkg/cache already exposes for advisory locking.
package lock

import (
	"context"
	"fmt"
	"time"

	"lnurlw-boltcard/pkg/cache"
)

// TTL bounds how long a card lock survives if its holder crashes before
// releasing it; long enough to cover a single tap's bind-advance-session
// sequence, short enough that a crash doesn't wedge the card.
const TTL = 5 * time.Second

// RedisCardLock implements cardauth.CardLock over the shared Redis cache.
type RedisCardLock struct{}

// NewRedisCardLock builds a RedisCardLock using the package-level
// pkg/cache client initialized at startup.
func NewRedisCardLock() *RedisCardLock {
	return &RedisCardLock{}
}

func (l *RedisCardLock) TryLock(ctx context.Context, cardID int64) (func(), bool, error) {
	key := fmt.Sprintf("lock:card:%d", cardID)
	acquired, err := cache.SetNX(ctx, key, "1", TTL)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	release := func() {
		_, _ = cache.Delete(context.Background(), key)
	}
	return release, true, nil
}
