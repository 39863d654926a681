package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint/checkpointtest"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// TestRedisStore runs contract tests against RedisStore.
func TestRedisStore(t *testing.T) {
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		_, client := newMiniredisClient(t)
		return checkpoint.NewRedisStoreFromClient(client)
	})
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredisClient(t)

	store := checkpoint.NewRedisStoreFromClient(client,
		checkpoint.WithRedisPrefix("test:"),
		checkpoint.WithRedisTTL(time.Minute),
	)
	defer store.Close()

	require.NoError(t, store.Save(ctx, checkpoint.New("s-1", 1, checkpoint.StatusTerminated, []byte("{}"))))

	assert.True(t, mr.Exists("test:s-1:latest"))
	assert.True(t, mr.Exists("test:s-1:steps"))
	assert.Equal(t, time.Minute, mr.TTL("test:s-1:steps"))

	mr.FastForward(2 * time.Minute)

	_, err := store.LoadLatest(ctx, "s-1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestRedisStore_CloseLeavesSharedClientOpen(t *testing.T) {
	ctx := context.Background()
	_, client := newMiniredisClient(t)

	store := checkpoint.NewRedisStoreFromClient(client)
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close())

	assert.NoError(t, client.Ping(ctx).Err())
}
