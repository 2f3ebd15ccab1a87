package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is kept in a hash: count, until (unix ms). The key lives for the
// remaining lock plus one lock duration so an expired lock still re-arms on
// the next failure.
const recordFailureScript = `
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local lockfor = tonumber(ARGV[3])
local count = tonumber(redis.call("HGET", KEYS[1], "count") or "0")
local untilms = tonumber(redis.call("HGET", KEYS[1], "until") or "0")
if untilms > now then
  return {count, untilms}
end
count = count + 1
if count >= threshold then
  count = threshold
  untilms = now + lockfor
end
redis.call("HSET", KEYS[1], "count", count, "until", untilms)
local ttl = lockfor
if untilms > now then
  ttl = (untilms - now) + lockfor
end
redis.call("PEXPIRE", KEYS[1], ttl)
return {count, untilms}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// RedisStore is a Redis-backed [Store].
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store under the key namespace prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ta"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(tenantID, userID string) string {
	return s.prefix + ":lo:" + tenantID + ":" + userID
}

// RecordFailure implements [Store].
//
//	Performance: 1 EVALSHA.
func (s *RedisStore) RecordFailure(ctx context.Context, tenantID, userID string, threshold int, lockFor time.Duration, now time.Time) (State, error) {
	raw, err := recordFailureLua.Run(ctx, s.redis, []string{s.key(tenantID, userID)},
		now.UnixMilli(), threshold, lockFor.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) != 2 {
		return State{}, fmt.Errorf("%w: unexpected lockout response", ErrUnavailable)
	}
	return toState(raw[0], raw[1]), nil
}

// Reset implements [Store].
func (s *RedisStore) Reset(ctx context.Context, tenantID, userID string) error {
	if err := s.redis.Del(ctx, s.key(tenantID, userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Load implements [Store]. A missing key is the zero state.
func (s *RedisStore) Load(ctx context.Context, tenantID, userID string) (State, error) {
	values, err := s.redis.HMGet(ctx, s.key(tenantID, userID), "count", "until").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return toState(parseField(values[0]), parseField(values[1])), nil
}

func parseField(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func toState(count, untilMS int64) State {
	st := State{FailedCount: int(count)}
	if untilMS > 0 {
		st.LockedUntil = time.UnixMilli(untilMS)
	}
	return st
}
