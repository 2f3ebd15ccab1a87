package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const allowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var allowLua = redis.NewScript(allowScript)

// Config holds one limiter's budget.
type Config struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter enforces a fixed-window budget per key.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a [Limiter] whose keys live under prefix.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, errors.New("rate: redis client is required")
	}
	if cfg.Limit < 1 || cfg.Window < time.Millisecond {
		return nil, fmt.Errorf("rate: invalid config limit=%d window=%s", cfg.Limit, cfg.Window)
	}
	return &Limiter{redis: redisClient, prefix: prefix, config: cfg}, nil
}

// Config returns the limiter budget.
func (l *Limiter) Config() Config { return l.config }

// Allow counts one request against key. When the request is over budget it
// returns the decision together with ErrRateLimited.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	vals, err := allowLua.Run(ctx, l.redis, []string{l.prefix + key}, l.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected limiter response", ErrRedisUnavailable)
	}

	count, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	if ttl > l.config.Window {
		ttl = l.config.Window
	}
	d := Decision{
		Allowed:    count <= int64(l.config.Limit),
		Limit:      l.config.Limit,
		Remaining:  max(l.config.Limit-int(count), 0),
		ResetAfter: ttl,
	}
	if !d.Allowed {
		return d, ErrRateLimited
	}
	return d, nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IPKey returns the key suffix for a client address.
func IPKey(ip string) string { return "ip:" + ip }

// UserKey returns the key suffix for a tenant scoped user.
func UserKey(tenantID, userID string) string { return "user:" + tenantID + ":" + userID }
