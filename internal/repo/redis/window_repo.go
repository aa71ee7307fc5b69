package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// WindowRepo keeps sliding-window event sets as Redis sorted sets scored by
// event timestamp (milliseconds).
type WindowRepo struct {
	client *goredis.Client
}

func NewWindowRepo(client *goredis.Client) *WindowRepo {
	return &WindowRepo{client: client}
}

// RecordAndCount adds a uniquely-named member at the given time, drops
// members older than the window, refreshes the key's backstop TTL and
// returns the resulting member count.
func (r *WindowRepo) RecordAndCount(ctx context.Context, key, member string, at time.Time, window, ttl time.Duration) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if key == "" || member == "" || window <= 0 {
		return 0, fmt.Errorf("invalid window event payload")
	}
	if ttl <= 0 {
		ttl = window + time.Second
	}

	cutoff := at.Add(-window).UnixMilli()
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(at.UnixMilli()), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record window event: %w", err)
	}

	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count window events: %w", err)
	}

	return count, nil
}

func (r *WindowRepo) Members(ctx context.Context, key string) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	members, err := r.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list window members: %w", err)
	}

	return members, nil
}

func (r *WindowRepo) Clear(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("clear window: %w", err)
	}

	return nil
}
