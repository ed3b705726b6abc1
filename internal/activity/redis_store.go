package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sugarbridge/activity-engine/internal/observability"
)

// ErrNotFound is returned by GetRecord when no record exists for an id.
var ErrNotFound = errors.New("activity: record not found")

// RedisStore implements Store over a single Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr and verifies connectivity before returning.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		// Allow bare host:port as a convenience for local dev.
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("activity: connecting to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func timed(start time.Time) {
	observability.StoreLatency.Observe(time.Since(start).Seconds())
}

func (s *RedisStore) PutRecord(ctx context.Context, rec *Record) error {
	defer timed(time.Now())
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("activity: marshal record %s: %w", rec.ID, err)
	}
	return s.client.HSet(ctx, recordKey(rec.ID), "data", data).Err()
}

func (s *RedisStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	defer timed(time.Now())
	data, err := s.client.HGet(ctx, recordKey(id), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("activity: get record %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("activity: unmarshal record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *RedisStore) DeleteRecord(ctx context.Context, id string) error {
	defer timed(time.Now())
	return s.client.Del(ctx, recordKey(id)).Err()
}

func (s *RedisStore) Schedule(ctx context.Context, id string, score time.Time) error {
	defer timed(time.Now())
	return s.client.ZAdd(ctx, scheduleKey, redis.Z{
		Score:  float64(score.Unix()),
		Member: id,
	}).Err()
}

func (s *RedisStore) Unschedule(ctx context.Context, id string) error {
	defer timed(time.Now())
	return s.client.ZRem(ctx, scheduleKey, id).Err()
}

func (s *RedisStore) DueBefore(ctx context.Context, now time.Time) ([]string, error) {
	defer timed(time.Now())
	return s.client.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
}

// Claim bulk-rescores ids to newScore in a single multi-member ZADD. Bumping the
// score (rather than removing the element) is the crash-safety trick
// that guarantees an orphaned activity still gets retried within one
// maxInterval if its processor dies mid-cycle.
func (s *RedisStore) Claim(ctx context.Context, ids []string, newScore time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	defer timed(time.Now())
	zs := make([]redis.Z, len(ids))
	for i, id := range ids {
		zs[i] = redis.Z{Score: float64(newScore.Unix()), Member: id}
	}
	return s.client.ZAdd(ctx, scheduleKey, zs...).Err()
}

func (s *RedisStore) AddWidgetToken(ctx context.Context, env Environment, token string) error {
	defer timed(time.Now())
	return s.client.SAdd(ctx, widgetSetKey(env), token).Err()
}

func (s *RedisStore) RemoveWidgetToken(ctx context.Context, env Environment, token string) error {
	defer timed(time.Now())
	return s.client.SRem(ctx, widgetSetKey(env), token).Err()
}

func (s *RedisStore) ListWidgetTokens(ctx context.Context, env Environment) ([]string, error) {
	defer timed(time.Now())
	return s.client.SMembers(ctx, widgetSetKey(env)).Result()
}
