package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cordum/mediaflow/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

var (
	errResourceOwner = errors.New("resource and owner required")
	errUnavailable   = errors.New("lock store unavailable")
)

// RedisStore keeps locks as plain keys holding the owner token, so they expire
// on their own if the holder dies.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore constructs a Redis-backed lock store.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Acquire takes the lock when it is free or already held by owner.
func (s *RedisStore) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	if s == nil || s.client == nil {
		return false, errUnavailable
	}
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	res, err := s.client.Eval(ctx, acquireScript, []string{lockKey(resource)}, owner, normalizeTTL(ttl).Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", resource, err)
	}
	return res == 1, nil
}

// Renew extends the TTL if owner still holds the lock.
func (s *RedisStore) Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	if s == nil || s.client == nil {
		return false, errUnavailable
	}
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	res, err := s.client.Eval(ctx, renewScript, []string{lockKey(resource)}, owner, normalizeTTL(ttl).Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lock %s: %w", resource, err)
	}
	return res == 1, nil
}

// Release deletes the lock only when owner holds it.
func (s *RedisStore) Release(ctx context.Context, resource, owner string) (bool, error) {
	if s == nil || s.client == nil {
		return false, errUnavailable
	}
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	res, err := s.client.Eval(ctx, releaseScript, []string{lockKey(resource)}, owner).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", resource, err)
	}
	return res == 1, nil
}

func lockKey(resource string) string {
	return "mf:lock:" + resource
}

const acquireScript = `
local cur = redis.call("GET", KEYS[1])
if not cur then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
if cur == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`

const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`
