package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// LoadJSON 读取 key 并反序列化到 v。found=false 表示 key 不存在。
func LoadJSON(ctx context.Context, rdb *rd.Client, key string, v any) (bool, error) {
	b, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

// SaveJSON 序列化 v 写入 key，并刷新 TTL。
func SaveJSON(ctx context.Context, rdb *rd.Client, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, ttl).Err()
}
