package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/randalmurphal/taskrouter/internal/logging"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph"
	"github.com/randalmurphal/taskrouter/pkg/flowgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, deps Deps) (*Service, *checkpoint.MemoryStore) {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	compiled, err := Compile(deps,
		flowgraph.WithCheckpointer(store),
		flowgraph.WithLogger(logging.NewNop()))
	require.NoError(t, err)
	return NewService(compiled, logging.NewNop()), store
}

func TestService_SubmitValidation(t *testing.T) {
	svc, store := newTestService(t, testDeps(&recordingExecutor{}))
	ctx := context.Background()

	_, err := svc.Submit(ctx, "", "hi")
	assert.ErrorIs(t, err, flowgraph.ErrSessionIDRequired)

	_, err = svc.Submit(ctx, "s1", "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	assert.Zero(t, store.Len())
}

func TestService_SubmitFinal(t *testing.T) {
	svc, _ := newTestService(t, testDeps(&recordingExecutor{}))

	res, err := svc.Submit(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, KindFinal, res.Kind)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, "answer: hello", res.Response)
	assert.Empty(t, res.Prompt)
}

func TestService_SubmitInterrupt(t *testing.T) {
	svc, _ := newTestService(t, testDeps(&recordingExecutor{}))

	res, err := svc.Submit(context.Background(), "s1", "启动车辆")
	require.NoError(t, err)
	assert.Equal(t, KindInterrupt, res.Kind)
	assert.Equal(t, ApprovalQuestion, res.Prompt)
	assert.Equal(t, "start_vehicle", res.ActionName)
	require.Len(t, res.ToolCalls, 1)
	assert.NotEmpty(t, res.ToolCalls[0].ID)
}

func TestService_ResumeValidation(t *testing.T) {
	svc, store := newTestService(t, testDeps(&recordingExecutor{}))

	_, err := svc.Resume(context.Background(), "", "yes")
	assert.ErrorIs(t, err, flowgraph.ErrSessionIDRequired)

	_, err = svc.Resume(context.Background(), "ghost", "yes")
	assert.ErrorIs(t, err, flowgraph.ErrInvalidResume)
	assert.Zero(t, store.Len())
}

func TestService_Session(t *testing.T) {
	svc, _ := newTestService(t, testDeps(&recordingExecutor{}))
	ctx := context.Background()

	_, err := svc.Session(ctx, "s1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	_, err = svc.Submit(ctx, "s1", "启动车辆")
	require.NoError(t, err)

	view, err := svc.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Step)
	assert.Equal(t, flowgraph.StatusSuspended, view.Status)
	require.NotNil(t, view.Pending)
	assert.Equal(t, "start_vehicle", view.Pending.Function)
	assert.Len(t, view.History, 2)
	assert.False(t, view.UpdatedAt.IsZero())

	_, err = svc.Resume(ctx, "s1", "yes")
	require.NoError(t, err)

	view, err = svc.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Step)
	assert.Nil(t, view.Pending)
	assert.Equal(t, "ran start_vehicle", view.Response)
}

func TestService_History(t *testing.T) {
	svc, _ := newTestService(t, testDeps(&recordingExecutor{}))
	ctx := context.Background()

	_, err := svc.Submit(ctx, "s1", "启动车辆")
	require.NoError(t, err)
	_, err = svc.Resume(ctx, "s1", "no")
	require.NoError(t, err)

	infos, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, flowgraph.StatusSuspended, infos[0].Status)
	assert.Equal(t, flowgraph.StatusTerminated, infos[1].Status)
}

func TestService_PlannerFailureEndsRun(t *testing.T) {
	deps := testDeps(&recordingExecutor{})
	deps.Planner = PlannerFunc(func(context.Context, string, []Message) (Proposal, error) {
		return Proposal{}, errors.New("model unavailable")
	})
	svc, _ := newTestService(t, deps)
	ctx := context.Background()

	res, err := svc.Submit(ctx, "s1", "启动车辆")
	require.NoError(t, err)
	assert.Equal(t, KindFinal, res.Kind)
	assert.Equal(t, "Error in task_allocation: plan action: model unavailable", res.Response)

	res, err = svc.Submit(ctx, "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "answer: hello", res.Response)
}
