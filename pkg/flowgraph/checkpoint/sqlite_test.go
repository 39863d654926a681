package checkpoint_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// First store instance
	store1, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	cp := checkpoint.New("s-1", 1, checkpoint.StatusSuspended, []byte(`{"query":"启动"}`)).
		WithInterrupt("approve", []byte(`{"question":"approve?"}`))
	require.NoError(t, store1.Save(ctx, cp))
	require.NoError(t, store1.Close())

	// Second store instance (reopening the database)
	store2, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	loaded, err := store2.LoadLatest(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, loaded.Suspended())
	assert.JSONEq(t, `{"query":"启动"}`, string(loaded.State))

	// Lineage continues after reopen.
	require.NoError(t, store2.Save(ctx, checkpoint.New("s-1", 2, checkpoint.StatusTerminated, []byte("{}"))))
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := checkpoint.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	const numGoroutines = 20
	const numOps = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			sessionID := fmt.Sprintf("s-%d", id%5)
			for j := 0; j < numOps; j++ {
				switch j % 3 {
				case 0:
					latest := 0
					if cp, err := store.LoadLatest(ctx, sessionID); err == nil {
						latest = cp.Step
					}
					_ = store.Save(ctx, checkpoint.New(sessionID, latest+1, checkpoint.StatusTerminated, []byte("{}")))
				case 1:
					_, _ = store.LoadLatest(ctx, sessionID)
				case 2:
					_, _ = store.List(ctx, sessionID)
				}
			}
		}(i)
	}

	wg.Wait()
}

func TestSQLiteStore_LargeState(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	history := make([]string, 10000)
	for i := range history {
		history[i] = fmt.Sprintf("message %d", i)
	}
	state := []byte(fmt.Sprintf(`{"history":%q}`, fmt.Sprint(history)))

	require.NoError(t, store.Save(ctx, checkpoint.New("s-1", 1, checkpoint.StatusTerminated, state)))

	loaded, err := store.Load(ctx, "s-1", 1)
	require.NoError(t, err)
	assert.JSONEq(t, string(state), string(loaded.State))

	infos, err := store.List(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Greater(t, infos[0].Size, int64(len(state)))
}
