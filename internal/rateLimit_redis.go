package contact

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindowStore keeps each identifier's window as a sorted set scored by
// Unix milliseconds, so several instances share one limit.
type RedisWindowStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisWindowOption func(*RedisWindowStore)

func WithKeyPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.TrimRight(prefix, ":") + ":" }
}

func NewRedisWindowStore(rdb *redis.Client, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "contact:ratelimit:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Hit(ctx context.Context, key string, now, windowStart time.Time, limit int) (bool, error) {
	k := s.prefix + key

	var card *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", msScore(windowStart))
		card = pipe.ZCard(ctx, k)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("prune window %s: %w", key, err)
	}
	if card.Val() >= int64(limit) {
		return false, nil
	}

	// Two concurrent callers may both see room here; the overshoot is tolerated.
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, k, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString(),
		})
		pipe.PExpire(ctx, k, now.Sub(windowStart))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("record hit %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisWindowStore) Count(ctx context.Context, key string, windowStart time.Time) (int, error) {
	n, err := s.rdb.ZCount(ctx, s.prefix+key, "("+msScore(windowStart), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count window %s: %w", key, err)
	}
	return int(n), nil
}

// Ping checks the Redis connection.
func (s *RedisWindowStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

func msScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
