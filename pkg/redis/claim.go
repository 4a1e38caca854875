package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaClaimOnce 通过 SETNX 保证同一个幂等键只被认领一次。
const luaClaimOnce = `
local key = KEYS[1]
local owner = ARGV[1]
local ttlSec = tonumber(ARGV[2])

if redis.call('SETNX', key, owner) == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return 1
end
return 0
`

// luaReleaseIfMatch 仅当值仍是本次 owner 时才删除，避免误删别人的认领。
const luaReleaseIfMatch = `
local key = KEYS[1]
local owner = ARGV[1]
if redis.call('GET', key) == owner then
  return redis.call('DEL', key)
end
return 0
`

// ClaimOnce 认领幂等键：
// - 首次认领返回 true
// - 重复认领返回 false
func ClaimOnce(ctx context.Context, rdb *rd.Client, key, owner string, ttl time.Duration) (bool, error) {
	ttlSec := int64(ttl / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	n, err := rdb.Eval(ctx, luaClaimOnce, []string{key}, owner, ttlSec).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseIfMatch 失败后释放认领，允许用户重试。
func ReleaseIfMatch(ctx context.Context, rdb *rd.Client, key, owner string) error {
	_, err := rdb.Eval(ctx, luaReleaseIfMatch, []string{key}, owner).Int()
	return err
}
