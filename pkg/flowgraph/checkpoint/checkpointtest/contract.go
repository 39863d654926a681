// Package checkpointtest provides a behavioural test suite that every
// checkpoint.Store implementation must pass.
package checkpointtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory creates a fresh, empty store for a single subtest.
type Factory func(t *testing.T) checkpoint.Store

func terminated(sessionID string, step int, state string) *checkpoint.Checkpoint {
	return checkpoint.New(sessionID, step, checkpoint.StatusTerminated, []byte(state))
}

// Run executes the store contract against stores built by factory.
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("Save_and_LoadLatest", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, terminated("s-1", 1, `{"query":"a"}`)))
		require.NoError(t, store.Save(ctx, terminated("s-1", 2, `{"query":"b"}`)))

		latest, err := store.LoadLatest(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Step)
		assert.Equal(t, "s-1", latest.SessionID)
		assert.Equal(t, checkpoint.StatusTerminated, latest.Status)
		assert.JSONEq(t, `{"query":"b"}`, string(latest.State))
	})

	t.Run("LoadLatest_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.LoadLatest(ctx, "s-missing")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run("Load_ByStep", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, terminated("s-1", 1, `{"n":1}`)))
		require.NoError(t, store.Save(ctx, terminated("s-1", 2, `{"n":2}`)))

		cp, err := store.Load(ctx, "s-1", 1)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(cp.State))

		_, err = store.Load(ctx, "s-1", 3)
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run("Interrupt_RoundTrip", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, terminated("s-1", 1, `{}`)))
		cp := checkpoint.New("s-1", 2, checkpoint.StatusSuspended, []byte(`{"query":"启动"}`)).
			WithParent(1).
			WithInterrupt("approve", []byte(`{"question":"ok?"}`))
		require.NoError(t, store.Save(ctx, cp))

		loaded, err := store.LoadLatest(ctx, "s-1")
		require.NoError(t, err)
		assert.True(t, loaded.Suspended())
		assert.Equal(t, 1, loaded.ParentStep)
		require.NotNil(t, loaded.Interrupt)
		assert.Equal(t, "approve", loaded.Interrupt.NodeID)
		assert.JSONEq(t, `{"question":"ok?"}`, string(loaded.Interrupt.Payload))
	})

	t.Run("Save_FirstStepMustBeOne", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		err := store.Save(ctx, terminated("s-1", 2, `{}`))
		assert.ErrorIs(t, err, checkpoint.ErrStepConflict)

		_, err = store.LoadLatest(ctx, "s-1")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run("Save_StaleStepConflicts", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, terminated("s-1", 1, `{"v":"first"}`)))
		err := store.Save(ctx, terminated("s-1", 1, `{"v":"second"}`))
		assert.ErrorIs(t, err, checkpoint.ErrStepConflict)

		cp, err := store.LoadLatest(ctx, "s-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":"first"}`, string(cp.State))
	})

	t.Run("Save_RejectsInvalid", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.ErrorIs(t, store.Save(ctx, terminated("", 1, `{}`)), checkpoint.ErrInvalidCheckpoint)
		assert.ErrorIs(t, store.Save(ctx, terminated("s-1", 0, `{}`)), checkpoint.ErrInvalidCheckpoint)
	})

	t.Run("Save_ConcurrentSameStep", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		wg.Add(writers)
		for i := 0; i < writers; i++ {
			go func(i int) {
				defer wg.Done()
				err := store.Save(ctx, terminated("s-race", 1, fmt.Sprintf(`{"writer":%d}`, i)))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else if assert.ErrorIs(t, err, checkpoint.ErrStepConflict) {
					conflicts++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, writers-1, conflicts)
	})

	t.Run("List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		infos, err := store.List(ctx, "s-missing")
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("List_Ordered", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, terminated("s-1", 1, `{}`)))
		require.NoError(t, store.Save(ctx, checkpoint.New("s-1", 2, checkpoint.StatusSuspended, []byte(`{}`)).
			WithInterrupt("approve", nil)))
		require.NoError(t, store.Save(ctx, terminated("s-1", 3, `{}`)))

		infos, err := store.List(ctx, "s-1")
		require.NoError(t, err)
		require.Len(t, infos, 3)

		for i, info := range infos {
			assert.Equal(t, i+1, info.Step)
			assert.Equal(t, "s-1", info.SessionID)
			assert.Positive(t, info.Size)
		}
		assert.Equal(t, checkpoint.StatusSuspended, infos[1].Status)
		assert.Equal(t, checkpoint.StatusTerminated, infos[2].Status)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, terminated("s-1", 1, `{}`)))
		require.NoError(t, store.Save(ctx, terminated("s-1", 2, `{}`)))
		require.NoError(t, store.Save(ctx, terminated("s-2", 1, `{}`)))

		require.NoError(t, store.DeleteSession(ctx, "s-1"))

		infos, err := store.List(ctx, "s-1")
		require.NoError(t, err)
		assert.Empty(t, infos)

		infos, err = store.List(ctx, "s-2")
		require.NoError(t, err)
		assert.Len(t, infos, 1)

		// A deleted session starts over at step 1.
		require.NoError(t, store.Save(ctx, terminated("s-1", 1, `{}`)))
	})

	t.Run("DeleteSession_Nonexistent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.NoError(t, store.DeleteSession(ctx, "s-missing"))
	})

	t.Run("Sessions_Isolated", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, terminated("s-1", 1, `{"owner":"one"}`)))
		require.NoError(t, store.Save(ctx, terminated("s-2", 1, `{"owner":"two"}`)))

		one, err := store.LoadLatest(ctx, "s-1")
		require.NoError(t, err)
		two, err := store.LoadLatest(ctx, "s-2")
		require.NoError(t, err)
		assert.JSONEq(t, `{"owner":"one"}`, string(one.State))
		assert.JSONEq(t, `{"owner":"two"}`, string(two.State))
	})

	t.Run("DataCopy", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		state := []byte(`{"v":"original"}`)
		require.NoError(t, store.Save(ctx, checkpoint.New("s-1", 1, checkpoint.StatusTerminated, state)))
		state[7] = 'X'

		loaded, err := store.LoadLatest(ctx, "s-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":"original"}`, string(loaded.State))
	})

	t.Run("Close_ThenError", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		err := store.Save(ctx, terminated("s-1", 1, `{}`))
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.LoadLatest(ctx, "s-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.List(ctx, "s-1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
	})
}
