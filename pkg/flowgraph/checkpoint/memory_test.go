package checkpoint_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Len(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Save(ctx, checkpoint.New("s-1", 1, checkpoint.StatusTerminated, []byte("{}"))))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Save(ctx, checkpoint.New("s-1", 2, checkpoint.StatusTerminated, []byte("{}"))))
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Save(ctx, checkpoint.New("s-2", 1, checkpoint.StatusTerminated, []byte("{}"))))
	assert.Equal(t, 3, store.Len())

	require.NoError(t, store.DeleteSession(ctx, "s-1"))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	const numGoroutines = 50
	const numOps = 40

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			sessionID := fmt.Sprintf("s-%d", id%10)
			for j := 0; j < numOps; j++ {
				// Mix of operations
				switch j % 4 {
				case 0, 1:
					latest := 0
					if cp, err := store.LoadLatest(ctx, sessionID); err == nil {
						latest = cp.Step
					}
					_ = store.Save(ctx, checkpoint.New(sessionID, latest+1, checkpoint.StatusTerminated, []byte("{}")))
				case 2:
					_, _ = store.LoadLatest(ctx, sessionID)
				case 3:
					_, _ = store.List(ctx, sessionID)
				}
			}
		}(i)
	}

	wg.Wait()

	// Steps must remain contiguous regardless of interleaving.
	for i := 0; i < 10; i++ {
		infos, err := store.List(ctx, fmt.Sprintf("s-%d", i))
		require.NoError(t, err)
		for j, info := range infos {
			assert.Equal(t, j+1, info.Step)
		}
	}
}
