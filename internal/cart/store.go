package cart

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per user: product_id => qty.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(userID string) string { return fmt.Sprintf(redisx.KeyCart, userID) }

func (s *RedisStore) Items(ctx context.Context, userID string) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(raw))
	for pid, v := range raw {
		qty, err := strconv.Atoi(v)
		if err != nil || qty <= 0 {
			continue
		}
		out[pid] = qty
	}
	return out, nil
}

func (s *RedisStore) Set(ctx context.Context, userID, productID string, qty int) error {
	k := key(userID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, productID, qty)
		p.Expire(ctx, k, redisx.TTLCart)
		return nil
	})
	return err
}

func (s *RedisStore) Remove(ctx context.Context, userID, productID string) error {
	return s.rdb.HDel(ctx, key(userID), productID).Err()
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, key(userID)).Err()
}
