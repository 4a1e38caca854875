// Package reqscope carries the per-request database handle and memo table.
//
// A Scope is created by middleware at the start of each request and closed
// in a defer, so the pinned connection goes back to the pool on every exit
// path, including panics. The connection is taken lazily: requests that
// never touch the database never check one out.
package reqscope

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrClosed is returned by DB after Close.
var ErrClosed = errors.New("request scope closed")

// Scope 单个请求的资源。不可跨 goroutine 共享。
type Scope struct {
	ctx    context.Context
	pool   *gorm.DB
	conn   *sql.Conn
	db     *gorm.DB
	memo   map[string]any
	closed bool
}

// New 创建请求作用域；pool 是进程级连接池。
func New(ctx context.Context, pool *gorm.DB) *Scope {
	return &Scope{ctx: ctx, pool: pool}
}

// DB 返回固定在单个连接上的 gorm 句柄，首次调用时才从连接池取出。
func (s *Scope) DB() (*gorm.DB, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.db != nil {
		return s.db, nil
	}
	sqlDB, err := s.pool.DB()
	if err != nil {
		return nil, fmt.Errorf("pool handle: %w", err)
	}
	conn, err := sqlDB.Conn(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	db, err := gorm.Open(sqlite.New(sqlite.Config{Conn: conn}), &gorm.Config{
		Logger: s.pool.Config.Logger,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wrap conn: %w", err)
	}
	s.conn = conn
	s.db = db.WithContext(s.ctx)
	return s.db, nil
}

// Close 归还连接并清空缓存，可重复调用。
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.memo = nil
	s.db = nil
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Forget 删除一个缓存项（写操作之后让同请求内的读取看到新数据）。
func (s *Scope) Forget(key string) {
	delete(s.memo, key)
}

// Memo 在本请求内缓存 fn 的结果，同一 key 只计算一次；出错不缓存。
func Memo[T any](s *Scope, key string, fn func() (T, error)) (T, error) {
	if v, ok := s.memo[key]; ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	if s.closed {
		return v, nil
	}
	if s.memo == nil {
		s.memo = make(map[string]any)
	}
	s.memo[key] = v
	return v, nil
}
