package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/resumeassist/usagegate/pkg/models"
)

// consumeScript adds ARGV[1] to KEYS[1] unless the total would pass ARGV[2].
// Returns the new count, or -1 when nothing was written.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local cost = tonumber(ARGV[1])
if current + cost > tonumber(ARGV[2]) then
	return -1
end
return redis.call('INCRBY', KEYS[1], cost)
`)

// RedisTracker implements Tracker with one integer key per (user, day).
type RedisTracker struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to url and verifies the server answers.
func NewRedis(ctx context.Context, url, prefix string) (*RedisTracker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisFromClient(client, prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *RedisTracker {
	if prefix == "" {
		prefix = "usage"
	}
	return &RedisTracker{client: client, prefix: prefix}
}

func (t *RedisTracker) key(userID, date string) string {
	return t.prefix + ":" + userID + ":" + date
}

// Usage returns the request count for userID on date.
func (t *RedisTracker) Usage(ctx context.Context, userID, date string) (int64, error) {
	count, err := t.client.Get(ctx, t.key(userID, date)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query usage: %w", err)
	}
	return count, nil
}

// Consume runs the conditional increment as a single script.
func (t *RedisTracker) Consume(ctx context.Context, userID, date string, cost, limit int64) (int64, bool, error) {
	if cost > limit {
		return 0, false, nil
	}
	count, err := consumeScript.Run(ctx, t.client, []string{t.key(userID, date)}, cost, limit).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("consume usage: %w", err)
	}
	if count < 0 {
		return 0, false, nil
	}
	return count, true, nil
}

// History scans the user's day keys and returns those on or after sinceDate.
func (t *RedisTracker) History(ctx context.Context, userID, sinceDate string) ([]models.UsageRecord, error) {
	pattern := t.prefix + ":" + userID + ":*"
	var keys []string
	iter := t.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}

	userPrefix := t.prefix + ":" + userID + ":"
	var records []models.UsageRecord
	for _, k := range keys {
		if !strings.HasPrefix(k, userPrefix) {
			continue
		}
		date := strings.TrimPrefix(k, userPrefix)
		if strings.Contains(date, ":") || date < sinceDate {
			continue
		}
		count, err := t.client.Get(ctx, k).Int64()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		records = append(records, models.UsageRecord{UserID: userID, Date: date, RequestCount: count})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date > records[j].Date })
	return records, nil
}

// Close releases the client.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
