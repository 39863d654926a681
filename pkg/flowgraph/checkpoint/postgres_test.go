package checkpoint_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint/checkpointtest"
	"github.com/stretchr/testify/require"
)

// TestPostgresStore runs contract tests against PostgresStore.
func TestPostgresStore(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		store, err := checkpoint.NewPostgresStore(ctx, db)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, "TRUNCATE TABLE session_checkpoints")
		require.NoError(t, err)
		return store
	})
}

func TestOpenPostgresStore_OwnsConnection(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	store, err := checkpoint.OpenPostgresStore(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, store.DeleteSession(ctx, "s-own"))
	require.NoError(t, store.Save(ctx, checkpoint.New("s-own", 1, checkpoint.StatusTerminated, []byte("{}"))))
	require.NoError(t, store.Close())
}
