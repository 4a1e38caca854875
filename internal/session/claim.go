package session

import (
	"context"
	"sync"
	"time"

	rediskey "storefront/pkg/redis"

	rd "github.com/redis/go-redis/v9"
)

// Claimer 一次性认领，用于结账幂等：同一个 key 在 ttl 内只能被认领一次。
type Claimer interface {
	Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// RedisClaimer 多实例共享认领状态。
type RedisClaimer struct {
	rdb *rd.Client
}

func NewRedisClaimer(rdb *rd.Client) *RedisClaimer {
	return &RedisClaimer{rdb: rdb}
}

func (c *RedisClaimer) Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return rediskey.ClaimOnce(ctx, c.rdb, key, owner, ttl)
}

func (c *RedisClaimer) Release(ctx context.Context, key, owner string) error {
	return rediskey.ReleaseIfMatch(ctx, c.rdb, key, owner)
}

// MemoryClaimer 进程内认领，未配置 Redis 时使用。
type MemoryClaimer struct {
	mu     sync.Mutex
	now    func() time.Time
	claims map[string]memoryClaim
}

type memoryClaim struct {
	owner   string
	expires time.Time
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{now: time.Now, claims: map[string]memoryClaim{}}
}

func (c *MemoryClaimer) Claim(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	// 顺带清掉过期的认领，map 只保留仍有效的键。
	for k, cl := range c.claims {
		if !now.Before(cl.expires) {
			delete(c.claims, k)
		}
	}
	if _, ok := c.claims[key]; ok {
		return false, nil
	}
	c.claims[key] = memoryClaim{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (c *MemoryClaimer) Release(_ context.Context, key, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.claims[key]; ok && cl.owner == owner {
		delete(c.claims, key)
	}
	return nil
}
