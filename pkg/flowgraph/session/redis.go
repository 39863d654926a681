package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock key only if it still holds our token.
var unlockScript = backend.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock key's expiry only if it still holds our token.
var renewScript = backend.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a distributed session lock built on SET NX PX.
// The holder renews the lease until it unlocks, so the TTL only bounds how
// long a crashed holder blocks the session.
// Waiters in the same process queue on a local lock first so only one of
// them polls Redis.
type RedisLocker struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	renew  time.Duration
	poll   time.Duration
	local  *LocalLocker
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithLockTTL sets how long a lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.ttl = ttl
	}
}

// WithRenewInterval sets how often a held lock's TTL is reset.
// The default is a third of the TTL.
func WithRenewInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.renew = d
	}
}

// WithLockPrefix sets the key prefix.
func WithLockPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// WithPollInterval sets the retry interval while the lock is held elsewhere.
func WithPollInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.poll = d
	}
}

// NewRedisLocker creates a distributed locker over client.
func NewRedisLocker(client *backend.Client, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: "taskrouter:",
		ttl:    30 * time.Second,
		poll:   100 * time.Millisecond,
		local:  NewLocalLocker(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.renew <= 0 || l.renew >= l.ttl {
		l.renew = l.ttl / 3
	}
	return l
}

func (l *RedisLocker) key(sessionID string) string {
	return l.prefix + "lock:" + sessionID
}

// Lock implements Locker.
// The returned UnlockFunc reports ErrLockLost when the lease expired or was
// taken over while held.
func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	unlockLocal, err := l.local.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	key := l.key(sessionID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			_ = unlockLocal(ctx)
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, err)
		}
		if ok {
			return l.hold(ctx, key, token, unlockLocal), nil
		}

		select {
		case <-ctx.Done():
			_ = unlockLocal(ctx)
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}

// hold starts renewing the lease and returns its release.
func (l *RedisLocker) hold(ctx context.Context, key, token string, unlockLocal UnlockFunc) UnlockFunc {
	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.renewLoop(renewCtx, key, token)
	}()

	var once sync.Once
	var unlockErr error
	return func(ctx context.Context) error {
		once.Do(func() {
			stop()
			wg.Wait()
			defer unlockLocal(ctx) //nolint:errcheck // local unlock never fails

			n, err := unlockScript.Run(ctx, l.client, []string{key}, token).Int()
			switch {
			case err != nil:
				unlockErr = fmt.Errorf("release %s: %w", key, err)
			case n == 0:
				unlockErr = fmt.Errorf("%w: %s", ErrLockLost, key)
			}
		})
		return unlockErr
	}
}

// renewLoop resets the key's TTL every renew interval until ctx is done or
// the token no longer matches. Transient errors are retried on the next tick.
func (l *RedisLocker) renewLoop(ctx context.Context, key, token string) {
	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()

	ttl := l.ttl.Milliseconds()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := renewScript.Run(ctx, l.client, []string{key}, token, ttl).Int()
		if err == nil && n == 0 {
			return
		}
	}
}
