// Package cache holds population reports in Redis between certificate
// mutations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"certregistry/internal/census/models"
)

const (
	keyPrefix = "census:pop:"
	genPrefix = "census:gen:"
	// epochKey is bumped by InvalidateAll so every series generation moves.
	epochKey = "census:epoch"
)

// RedisCache is a read-through cache for population reports. Entries expire
// after ttl and are deleted after every committed census change. Each
// invalidation bumps a generation counter so a reader that loaded rows
// before the change cannot write them back afterwards.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(series models.SeriesKey) string {
	return keyPrefix + series.String()
}

func genKey(series models.SeriesKey) string {
	return genPrefix + series.String()
}

// Generation identifies the invalidation state of a series. Read it before
// loading rows from the store and hand it back to Set.
func (c *RedisCache) Generation(ctx context.Context, series models.SeriesKey) (int64, error) {
	return generation(ctx, c.client, series)
}

type mgetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func generation(ctx context.Context, cmd mgetter, series models.SeriesKey) (int64, error) {
	vals, err := cmd.MGet(ctx, genKey(series), epochKey).Result()
	if err != nil {
		return 0, fmt.Errorf("read generation %s: %w", series, err)
	}
	var gen int64
	for _, v := range vals {
		if v == nil {
			continue
		}
		n, err := strconv.ParseInt(v.(string), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse generation %s: %w", series, err)
		}
		gen += n
	}
	return gen, nil
}

// Get returns false on a miss.
func (c *RedisCache) Get(ctx context.Context, series models.SeriesKey) ([]models.GradeCount, bool, error) {
	raw, err := c.client.Get(ctx, key(series)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get population %s: %w", series, err)
	}
	var rows []models.GradeCount
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false, fmt.Errorf("decode population %s: %w", series, err)
	}
	return rows, true, nil
}

// Set stores rows read at generation gen. It reports false and writes
// nothing when the series was invalidated since gen was read.
func (c *RedisCache) Set(ctx context.Context, series models.SeriesKey, gen int64, rows []models.GradeCount) (bool, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return false, fmt.Errorf("encode population %s: %w", series, err)
	}
	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx, series)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(series), raw, c.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, genKey(series), epochKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store population %s: %w", series, err)
	}
	return stored, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, series ...models.SeriesKey) error {
	if len(series) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, s := range series {
			pipe.Incr(ctx, genKey(s))
			pipe.Del(ctx, key(s))
		}
		return nil
	})
	return err
}

// InvalidateAll drops every cached report. Used after a rebuild.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, epochKey).Err(); err != nil {
		return fmt.Errorf("bump census epoch: %w", err)
	}
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	pipe := c.client.Pipeline()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan population keys: %w", err)
	}
	if pipe.Len() == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}
