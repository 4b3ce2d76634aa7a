package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Cache is a read-through shortcut in front of Postgres. Postgres stays the
// source of truth; every cache error is treated as a miss.
type Cache interface {
	CheckoutOrder(ctx context.Context, userID, key string) (string, bool)
	RememberCheckout(ctx context.Context, userID, key, orderID string)
	Status(ctx context.Context, orderID string) (StatusEntry, bool)
	SetStatus(ctx context.Context, orderID string, e StatusEntry)
}

type StatusEntry struct {
	Status Status `json:"status"`
	UserID string `json:"user_id"`
}

type RedisCache struct {
	rdb redis.Cmdable
}

func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) CheckoutOrder(ctx context.Context, userID, key string) (string, bool) {
	id, err := c.rdb.Get(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, userID, key)).Result()
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

func (c *RedisCache) RememberCheckout(ctx context.Context, userID, key, orderID string) {
	if err := c.rdb.Set(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, userID, key), orderID, redisx.TTLIdempotency).Err(); err != nil {
		slog.WarnContext(ctx, "cache idempotency key", "order_id", orderID, "err", err)
	}
}

func (c *RedisCache) Status(ctx context.Context, orderID string) (StatusEntry, bool) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Bytes()
	if err != nil {
		return StatusEntry{}, false
	}
	var e StatusEntry
	if err := json.Unmarshal(raw, &e); err != nil || e.Status == "" {
		return StatusEntry{}, false
	}
	return e, true
}

func (c *RedisCache) SetStatus(ctx context.Context, orderID string, e StatusEntry) {
	b, _ := json.Marshal(e)
	if err := c.rdb.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), b, redisx.TTLStatusCache).Err(); err != nil {
		slog.WarnContext(ctx, "cache order status", "order_id", orderID, "err", err)
	}
}
