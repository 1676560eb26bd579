package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetOrLoadJSON 读穿缓存的 JSON 版本。
// 缓存里的旧结构解不开时删掉该 key 直接回源，不把解码错误抛给调用方。
func GetOrLoadJSON[T any](c *Cache, ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) (*T, error)) (*T, error) {
	var fresh *T
	b, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		fresh = v
		return json.Marshal(v)
	})
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		return fresh, nil
	}
	if string(b) == "null" {
		return nil, nil
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err == nil {
		return out, nil
	}
	_ = c.Invalidate(ctx, key)
	return load(ctx)
}
