package invoices

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisGuard remembers handled webhook event ids for TTLWebhook.
type RedisGuard struct {
	rdb redis.Cmdable
}

func NewRedisGuard(rdb redis.Cmdable) *RedisGuard {
	return &RedisGuard{rdb: rdb}
}

func (g *RedisGuard) Seen(ctx context.Context, eventID string) bool {
	ok, err := redisx.Exists(ctx, g.rdb, fmt.Sprintf(redisx.KeyWebhookEvent, eventID))
	return err == nil && ok
}

func (g *RedisGuard) Mark(ctx context.Context, eventID string) {
	if err := g.rdb.Set(ctx, fmt.Sprintf(redisx.KeyWebhookEvent, eventID), "1", redisx.TTLWebhook).Err(); err != nil {
		slog.WarnContext(ctx, "remember webhook event", "event_id", eventID, "err", err)
	}
}
