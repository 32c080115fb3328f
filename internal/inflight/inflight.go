// Package inflight keeps at most one overview load running per parent token. A load
// that finds the token busy is dropped, not queued.
package inflight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release ends a load started by Acquire. Calling it more than once is safe.
type Release func()

// Guard admits one load per key.
type Guard interface {
	// Acquire reports ok=false when a load for key is already running. ttl bounds
	// how long a crashed holder can block the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release Release, ok bool, err error)
}

// Local is a process-wide guard.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocal() *Local {
	return &Local{held: map[string]time.Time{}, now: time.Now}
}

func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, busy := l.held[key]; busy && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// a holder that outlived its ttl must not free a newer holder
			if l.held[key].Equal(until) {
				delete(l.held, key)
			}
		})
	}, true, nil
}

// Len returns the number of keys currently held.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// releaseScript deletes the key only while it still carries the holder's value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis shares the guard across instances with SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "edulink:inflight:"
	}
	return &Redis{client: client, prefix: prefix}
}

// redisKey hashes the parent token so it is never stored or logged in clear.
func (r *Redis) redisKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + hex.EncodeToString(sum[:])
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	k := r.redisKey(key)
	holder := uuid.NewString()

	ok, err := r.client.SetNX(ctx, k, holder, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", k, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be gone
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{k}, holder).Err(); err != nil && !errors.Is(err, redis.Nil) {
				slog.Warn("Failed to release in-flight key, it will expire", "key", k, "error", err)
			}
		})
	}, true, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
