package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	rediskey "storefront/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间戳，ARGV[2]=窗口开始时间戳，ARGV[3]=窗口秒数
// ARGV[4]=本次成员，ARGV[5]=窗口内上限
// 返回：当前窗口内的请求数（超限返回 -1）
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

-- 删除窗口外的旧记录
redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)

if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// Limiter 判断 key 在当前窗口内是否还能放行。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter 基于有序集合的滑动窗口，多实例共享计数。
type RedisLimiter struct {
	rdb    *rd.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb *rd.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowSec := int64(l.window.Seconds())
	if windowSec <= 0 {
		windowSec = 1
	}
	member := fmt.Sprintf("%d-%d", now.Unix(), now.UnixNano())
	res, err := l.rdb.Eval(ctx, luaRateLimit, []string{key},
		now.Unix(), now.Unix()-windowSec, windowSec, member, l.limit).Int()
	if err != nil {
		return false, err
	}
	return res >= 0, nil
}

// RateLimit 按会话（没有会话时按 IP）限流，scope 区分接口。
// limiter 为 nil 时不限流；Redis 出错时放行（降级策略）。
func RateLimit(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ok, err := limiter.Allow(c.Request.Context(), rediskey.RateLimitKey(scope, rateSubject(c)))
		if err != nil {
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "请求过于频繁，请稍后再试",
			})
			return
		}
		c.Next()
	}
}

func rateSubject(c *gin.Context) string {
	if sid := SessionID(c); sid != "" {
		return "sid:" + sid
	}
	return "ip:" + c.ClientIP()
}
