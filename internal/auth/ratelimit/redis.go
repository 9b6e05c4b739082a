package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "walletauth:ratelimit"

// KEYS[1] counter, KEYS[2] block marker.
// ARGV[1] max attempts, ARGV[2] window ms, ARGV[3] block ms (0 = rest of window).
// Returns {blocked, attempts, retry_after_ms}.
var recordScript = redis.NewScript(`
local blocked = redis.call('PTTL', KEYS[2])
if blocked > 0 then
	return {1, tonumber(redis.call('GET', KEYS[2]) or '0'), blocked}
end

local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end

if count > tonumber(ARGV[1]) then
	local ttl = tonumber(ARGV[3])
	if ttl <= 0 then
		ttl = redis.call('PTTL', KEYS[1])
	end
	if ttl <= 0 then
		ttl = tonumber(ARGV[2])
	end
	redis.call('SET', KEYS[2], count, 'PX', ttl)
	redis.call('DEL', KEYS[1])
	return {1, count, ttl}
end

return {0, count, 0}
`)

// RedisOptions tune a RedisLimiter.
type RedisOptions struct {
	KeyPrefix string
	// Admin enables Clear.
	Admin bool
}

// RedisLimiter keeps counters in Redis with key expiry standing in for the
// window, so every instance behind a load balancer sees the same counts.
type RedisLimiter struct {
	client redis.UniversalClient
	config Config
	prefix string
	admin  bool
}

func NewRedisLimiter(client redis.UniversalClient, cfg Config, opts RedisOptions) *RedisLimiter {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisLimiter{
		client: client,
		config: cfg.normalised(),
		prefix: prefix,
		admin:  opts.Admin,
	}
}

func (l *RedisLimiter) keys(identifier string, kind domain.IdentifierKind) (string, string) {
	base := fmt.Sprintf("%s:%s:%s", l.prefix, kind, identifier)
	return base, base + ":block"
}

func (l *RedisLimiter) Record(
	ctx context.Context,
	identifier string,
	kind domain.IdentifierKind,
) (domain.RateLimitDecision, error) {
	counter, block := l.keys(identifier, kind)
	res, err := recordScript.Run(ctx, l.client, []string{counter, block},
		l.config.MaxAttempts,
		l.config.Window.Milliseconds(),
		l.config.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	if len(res) != 3 {
		return domain.RateLimitDecision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return domain.RateLimitDecision{
		Blocked:      res[0] == 1,
		AttemptCount: int(res[1]),
		RetryAfter:   time.Duration(res[2]) * time.Millisecond,
	}, nil
}

func (l *RedisLimiter) Status(
	ctx context.Context,
	identifier string,
	kind domain.IdentifierKind,
) (domain.RateLimitDecision, error) {
	counter, block := l.keys(identifier, kind)

	pipe := l.client.Pipeline()
	ttl := pipe.PTTL(ctx, block)
	count := pipe.Get(ctx, counter)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.RateLimitDecision{}, err
	}

	if d := ttl.Val(); d > 0 {
		return domain.RateLimitDecision{Blocked: true, RetryAfter: d}, nil
	}
	n, err := count.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.RateLimitDecision{}, err
	}
	return domain.RateLimitDecision{AttemptCount: n}, nil
}

func (l *RedisLimiter) Clear(ctx context.Context, identifier string, kind domain.IdentifierKind) error {
	if !l.admin {
		return store.ErrAdminDisabled
	}
	counter, block := l.keys(identifier, kind)
	return l.client.Del(ctx, counter, block).Err()
}

// Cleanup is a no-op; Redis expires the keys itself.
func (l *RedisLimiter) Cleanup(context.Context) (int64, error) { return 0, nil }
