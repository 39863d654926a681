package flowgraph

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome_Update(t *testing.T) {
	out := Update(testState{Output: "x"})

	assert.Equal(t, OutcomeUpdate, out.Kind())
	assert.False(t, out.Suspended())
	assert.Equal(t, "x", out.Partial().Output)
	assert.Nil(t, out.Payload())
}

func TestOutcome_Suspend(t *testing.T) {
	out := Suspend[testState](approvalPayload{Question: "ok?"})

	assert.Equal(t, OutcomeSuspend, out.Kind())
	assert.True(t, out.Suspended())
	assert.Equal(t, approvalPayload{Question: "ok?"}, out.Payload())
	assert.Equal(t, testState{}, out.Partial())
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "update", OutcomeUpdate.String())
	assert.Equal(t, "suspend", OutcomeSuspend.String())
	assert.Equal(t, "OutcomeKind(7)", OutcomeKind(7).String())
}

func TestWithTimeout_Passthrough(t *testing.T) {
	fn := WithTimeout(time.Second, respond("fast", "ok"))

	out, err := fn(NewContext(context.Background()), testState{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Partial().Output)
}

func TestWithTimeout_ZeroDisables(t *testing.T) {
	var sawDeadline bool
	fn := WithTimeout(0, func(ctx Context, s testState) (Outcome[testState], error) {
		_, sawDeadline = ctx.Deadline()
		return Update(testState{}), nil
	})

	_, err := fn(NewContext(context.Background()), testState{})
	require.NoError(t, err)
	assert.False(t, sawDeadline)
}

func TestWithTimeout_Expires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	fn := WithTimeout(10*time.Millisecond, func(ctx Context, s testState) (Outcome[testState], error) {
		<-release
		return Update(testState{Output: "late"}), nil
	})

	_, err := fn(NewContext(context.Background(), WithContextNodeID("slow")), testState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "node exceeded 10ms")
}

func TestWithTimeout_KeepsMetadata(t *testing.T) {
	var (
		nodeID string
		value  any
	)
	fn := WithTimeout(time.Second, func(ctx Context, s testState) (Outcome[testState], error) {
		nodeID = ctx.NodeID()
		value, _ = ctx.ResumeValue()
		return Update(testState{}), nil
	})

	ctx := NewContext(context.Background(), WithContextNodeID("approve"), WithContextResume("yes"))
	_, err := fn(ctx, testState{})
	require.NoError(t, err)
	assert.Equal(t, "approve", nodeID)
	assert.Equal(t, "yes", value)
}

func TestWithTimeout_RecoversPanic(t *testing.T) {
	fn := WithTimeout[testState](time.Second, makePanicNode("boom"))

	_, err := fn(NewContext(context.Background()), testState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestNewContext_Defaults(t *testing.T) {
	ctx := NewContext(context.Background())

	assert.Same(t, slog.Default(), ctx.Logger())
	assert.Empty(t, ctx.SessionID())
	assert.Empty(t, ctx.NodeID())
	assert.Zero(t, ctx.Step())
	_, ok := ctx.ResumeValue()
	assert.False(t, ok)
}

func TestNewContext_Options(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := NewContext(context.Background(),
		WithContextLogger(logger),
		WithContextSessionID("s-1"),
		WithContextNodeID("router"),
		WithContextStep(3),
		WithContextResume("no"),
	)

	assert.Same(t, logger, ctx.Logger())
	assert.Equal(t, "s-1", ctx.SessionID())
	assert.Equal(t, "router", ctx.NodeID())
	assert.Equal(t, 3, ctx.Step())
	v, ok := ctx.ResumeValue()
	assert.True(t, ok)
	assert.Equal(t, "no", v)
}

func TestNewContext_NilLoggerIgnored(t *testing.T) {
	ctx := NewContext(context.Background(), WithContextLogger(nil))
	assert.NotNil(t, ctx.Logger())
}

func TestNewContext_Cancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx := NewContext(parent)

	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
