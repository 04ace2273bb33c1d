package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkWindowScript runs the same fixed-window math as Limiter.Check, but
// atomically inside Redis so multiple instances share one counter. Times are
// unix milliseconds. Returns {allowed, remaining, resetAt}.
//
// Keep this in sync with Limiter.Check: strict now > reset comparison, fresh
// window writes count=1, denials do not increment.
var checkWindowScript = redis.NewScript(`
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset') or '0')
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

if reset == 0 or now > reset then
  reset = now + window
  redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
  redis.call('PEXPIREAT', KEYS[1], reset + window)
  return {1, max - 1, reset}
end

if count >= max then
  return {0, 0, reset}
end

count = count + 1
redis.call('HSET', KEYS[1], 'count', count)
return {1, max - count, reset}
`)

// RedisStore shares fixed-window state across instances. It is the one
// sanctioned departure from the single-process contract, selected via
// configuration; the default deployment keeps the MemoryStore. Unlike the
// memory store, entries carry a TTL of one extra window so Redis does not
// accumulate dead keys forever.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + key
}

// CheckWindow implements the atomic fixed-window decision.
func (s *RedisStore) CheckWindow(ctx context.Context, key string, policy Policy, now time.Time) (Decision, error) {
	res, err := checkWindowScript.Run(ctx, s.client, []string{s.redisKey(key)},
		now.UnixMilli(), policy.Window.Milliseconds(), policy.MaxRequests).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}
	allowed, _ := res[0].(int64)
	remaining, _ := res[1].(int64)
	resetMs, _ := res[2].(int64)
	return Decision{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		Limit:     policy.MaxRequests,
		ResetAt:   time.UnixMilli(resetMs),
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return Entry{}, false, err
	}
	if len(vals) == 0 {
		return Entry{}, false, nil
	}
	var entry Entry
	if _, err := fmt.Sscanf(vals["count"], "%d", &entry.Count); err != nil {
		return Entry{}, false, fmt.Errorf("corrupt count for %q: %w", key, err)
	}
	var resetMs int64
	if _, err := fmt.Sscanf(vals["reset"], "%d", &resetMs); err != nil {
		return Entry{}, false, fmt.Errorf("corrupt reset for %q: %w", key, err)
	}
	entry.WindowResetAt = time.UnixMilli(resetMs)
	return entry, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, entry Entry) error {
	rk := s.redisKey(key)
	if err := s.client.HSet(ctx, rk, "count", entry.Count, "reset", entry.WindowResetAt.UnixMilli()).Err(); err != nil {
		return err
	}
	return s.client.PExpireAt(ctx, rk, entry.WindowResetAt.Add(time.Minute)).Err()
}
