package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newRedis(t)
	locker := session.NewRedisLocker(client, session.WithLockPrefix("test:"))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:s-1"), "lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:s-1"), "lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	_, client := newRedis(t)
	// Separate lockers model separate processes sharing one Redis.
	locker1 := session.NewRedisLocker(client, session.WithPollInterval(10*time.Millisecond))
	locker2 := session.NewRedisLocker(client, session.WithPollInterval(10*time.Millisecond))
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "s-shared")
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(ctxTimeout, "s-shared")
	assert.ErrorIs(t, err, session.ErrLockAcquire)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "s-shared")
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestRedisLocker_ExpiredLockNotStolenBack(t *testing.T) {
	mr, client := newRedis(t)
	// Renewal is pushed past the test so holder 1 stalls without renewing.
	locker1 := session.NewRedisLocker(client,
		session.WithLockTTL(time.Minute),
		session.WithRenewInterval(50*time.Second))
	locker2 := session.NewRedisLocker(client, session.WithPollInterval(10*time.Millisecond))
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "s-1")
	require.NoError(t, err)

	// Holder 1 stalls past its TTL; holder 2 takes over.
	mr.FastForward(2 * time.Minute)
	unlock2, err := locker2.Lock(ctx, "s-1")
	require.NoError(t, err)

	// Late unlock from holder 1 must not release holder 2's lock.
	assert.ErrorIs(t, unlock1(ctx), session.ErrLockLost)
	assert.True(t, mr.Exists("taskrouter:lock:s-1"))

	require.NoError(t, unlock2(ctx))
	assert.False(t, mr.Exists("taskrouter:lock:s-1"))
}

func TestRedisLocker_SerializesSameProcess(t *testing.T) {
	_, client := newRedis(t)
	locker := session.NewRedisLocker(client, session.WithPollInterval(5*time.Millisecond))
	ctx := context.Background()

	var (
		mu      sync.Mutex
		counter int
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := session.WithLock(ctx, locker, "s-1", func(context.Context) error {
				mu.Lock()
				v := counter
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				counter = v + 1
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, counter)
}

func TestRedisLocker_RenewsWhileHeld(t *testing.T) {
	mr, client := newRedis(t)
	const key = "taskrouter:lock:s-1"
	locker1 := session.NewRedisLocker(client,
		session.WithLockTTL(time.Second),
		session.WithRenewInterval(10*time.Millisecond))
	locker2 := session.NewRedisLocker(client, session.WithPollInterval(10*time.Millisecond))
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "s-1")
	require.NoError(t, err)

	// Two TTLs pass in half-TTL slices; each slice waits for a renewal.
	for i := 0; i < 4; i++ {
		mr.FastForward(500 * time.Millisecond)
		require.Eventually(t, func() bool {
			return mr.TTL(key) > 600*time.Millisecond
		}, time.Second, 5*time.Millisecond, "lease not renewed after slice %d", i)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(ctxTimeout, "s-1")
	require.Error(t, err, "a renewed lock must not be acquired by another holder")
	assert.ErrorIs(t, err, session.ErrLockAcquire)

	require.NoError(t, unlock1(ctx))
	assert.False(t, mr.Exists(key))
}

func TestRedisLocker_UnlockReportsLostLease(t *testing.T) {
	mr, client := newRedis(t)
	locker := session.NewRedisLocker(client, session.WithLockPrefix("test:"))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s-1")
	require.NoError(t, err)

	// Another holder's token replaced ours.
	require.NoError(t, mr.Set("test:lock:s-1", "someone-else"))

	err = unlock(ctx)
	assert.ErrorIs(t, err, session.ErrLockLost)
	assert.True(t, mr.Exists("test:lock:s-1"), "foreign lock must survive")
}

func TestRedisLocker_StopsRenewingAfterUnlock(t *testing.T) {
	mr, client := newRedis(t)
	locker := session.NewRedisLocker(client,
		session.WithLockTTL(time.Second),
		session.WithRenewInterval(5*time.Millisecond))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "s-1")
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	// A later holder with the same key is not touched by the old renewer.
	require.NoError(t, mr.Set("taskrouter:lock:s-1", "other"))
	mr.SetTTL("taskrouter:lock:s-1", 200*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, mr.TTL("taskrouter:lock:s-1"))
}

func TestWithLock_ReportsLostLease(t *testing.T) {
	mr, client := newRedis(t)
	locker := session.NewRedisLocker(client, session.WithLockPrefix("test:"))

	err := session.WithLock(context.Background(), locker, "s-1", func(context.Context) error {
		mr.Del("test:lock:s-1")
		return nil
	})
	assert.ErrorIs(t, err, session.ErrLockLost)
}
