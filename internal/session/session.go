// Package session keeps per-visitor state (cart, admin login) behind an
// opaque session id carried in a cookie.
package session

import (
	"context"
	"sync"
	"time"

	"storefront/internal/cart"
	rediskey "storefront/pkg/redis"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// Session 会话内容。
type Session struct {
	Cart          cart.Cart `json:"cart"`
	AdminID       int64     `json:"admin_id,omitempty"`
	AdminUsername string    `json:"admin_username,omitempty"`
}

// LoggedIn 是否已登录后台。
func (s Session) LoggedIn() bool { return s.AdminID > 0 }

// Store 会话存储。Load 对不存在的 sid 返回空会话。
type Store interface {
	Load(ctx context.Context, sid string) (Session, error)
	Save(ctx context.Context, sid string, s Session) error
	Delete(ctx context.Context, sid string) error
}

// NewID 生成新的会话 ID。
func NewID() string { return uuid.NewString() }

// RedisStore 会话以 JSON 存在 Redis，每次保存刷新 TTL。
type RedisStore struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewRedisStore(rdb *rd.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, sid string) (Session, error) {
	var out Session
	if _, err := rediskey.LoadJSON(ctx, s.rdb, rediskey.SessionKey(sid), &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, sid string, sess Session) error {
	return rediskey.SaveJSON(ctx, s.rdb, rediskey.SessionKey(sid), sess, s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, rediskey.SessionKey(sid)).Err()
}

// MemoryStore 进程内会话，未配置 Redis 时和测试中使用。
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]memoryEntry
}

type memoryEntry struct {
	sess    Session
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, data: map[string]memoryEntry{}}
}

func (s *MemoryStore) Load(_ context.Context, sid string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[sid]
	if !ok {
		return Session{}, nil
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		delete(s.data, sid)
		return Session{}, nil
	}
	return clone(e.sess), nil
}

func (s *MemoryStore) Save(_ context.Context, sid string, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sid] = memoryEntry{sess: clone(sess), expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sid)
	return nil
}

// clone 复制购物车切片，避免调用方修改共享状态。
func clone(s Session) Session {
	s.Cart.Entries = append([]cart.Entry(nil), s.Cart.Entries...)
	return s
}
